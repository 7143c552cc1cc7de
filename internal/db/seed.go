package db

import (
	"context"
	"fmt"
)

// DefaultGroups — группы, создаваемые при первом запуске.
var DefaultGroups = []string{"Э-101", "Э-102", "Б-101", "Б-102", "Ф-101"}

// SeedDefaultGroups идемпотентно создаёт группы по умолчанию.
func SeedDefaultGroups(ctx context.Context, q Queryer) error {
	for _, name := range DefaultGroups {
		if err := EnsureGroup(ctx, q, name); err != nil {
			return fmt.Errorf("seed group %q: %w", name, err)
		}
	}
	return nil
}
