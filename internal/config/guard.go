package config

import (
	"fmt"

	"github.com/MrWong99/phonospell/internal/spelling/guard"
)

// BuildGuard returns the built-in protected-word list extended with
// g.AllowWords and the contents of g.AllowFile.
func BuildGuard(g GuardConfig) (*guard.Set, error) {
	extra := append([]string(nil), g.AllowWords...)
	if g.AllowFile != "" {
		words, err := guard.LoadFile(g.AllowFile)
		if err != nil {
			return nil, fmt.Errorf("config: guard allow_file: %w", err)
		}
		extra = append(extra, words...)
	}
	return guard.Default(extra...), nil
}
