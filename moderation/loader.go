package moderation

import (
	"bufio"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/samber/lo"
)

//go:embed censored/*
var censoredFolder embed.FS

// LoadEmbeddedWords reads every wordlist shipped with the binary, one word
// per line, comments starting with '#'. Duplicates across languages are
// collapsed.
func LoadEmbeddedWords() ([]string, error) {
	var words []string
	err := fs.WalkDir(censoredFolder, "censored", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		file, err := censoredFolder.Open(path)
		if err != nil {
			return fmt.Errorf("opening wordlist %s: %w", path, err)
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			words = append(words, strings.ToLower(word))
		}
		return scanner.Err()
	})
	if err != nil {
		return nil, err
	}
	return lo.Uniq(words), nil
}
