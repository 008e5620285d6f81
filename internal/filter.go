package internal

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// NewLocationFilter only lets through payloads shaped like a LocationUpdate
// with coordinates on the globe.
func NewLocationFilter() PayloadFilter {
	validate := validator.New()

	return func(payload []byte) error {
		update := LocationUpdate{}
		if err := json.Unmarshal(payload, &update); err != nil {
			return fmt.Errorf("decode location: %w", err)
		}

		if err := validate.Struct(update); err != nil {
			return fmt.Errorf("invalid location: %w", err)
		}

		return nil
	}
}
