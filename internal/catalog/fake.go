package catalog

import "github.com/shopspring/decimal"

// fakeProducts backs the client when no API base URL is configured.
func fakeProducts() map[string]Product {
	return map[string]Product{
		"1": {
			ID:          "1",
			Name:        "Sello de madera clásico",
			Description: "Sello tallado a mano en **madera de cerezo**.\n\n- Diámetro 15 mm\n- Incluye estuche",
			Price:       decimal.RequireFromString("149.90"),
			Stock:       12,
			Images:      ImageListRef("/uploads/sello-1.jpg", "/uploads/sello-2.jpg", "/uploads/sello-3.jpg"),
		},
		"2": {
			ID:          "2",
			Name:        "Tinta bermellón",
			Description: "Tinta tradicional para sellos.",
			Price:       decimal.RequireFromString("35"),
			Stock:       0,
			Images:      SingleImage("/uploads/tinta.jpg"),
		},
		"3": {
			ID:          "3",
			Name:        "Estuche de viaje",
			Description: "Estuche compacto sin fotografía disponible.",
			Price:       decimal.RequireFromString("60.50"),
			Stock:       4,
		},
	}
}
