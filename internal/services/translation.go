package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/adminkit/apiserver/internal/store"
)

// Translation is the content of one translation file: string leaves under
// arbitrarily nested groups.
type Translation map[string]any

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// TranslationService edits the JSON translation files below dir, laid out
// as <dir>/<locale>/<list>.json.
type TranslationService struct {
	dir string
	mu  sync.Mutex
}

func NewTranslationService(dir string) *TranslationService {
	return &TranslationService{dir: dir}
}

// Locales lists the locale directories.
func (s *TranslationService) Locales(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	locales := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			locales = append(locales, entry.Name())
		}
	}
	sort.Strings(locales)
	return locales, nil
}

// Lists returns the file names, without extension, available in locale.
func (s *TranslationService) Lists(ctx context.Context, locale string) ([]string, error) {
	if !segmentPattern.MatchString(locale) {
		return nil, store.ErrNotFound
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, locale))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lists := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.Type().IsRegular() && strings.HasSuffix(name, ".json") {
			lists = append(lists, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(lists)
	return lists, nil
}

// Show returns the parsed content of locale/list.
func (s *TranslationService) Show(ctx context.Context, locale, list string) (Translation, error) {
	path, err := s.path(locale, list)
	if err != nil {
		return nil, err
	}
	return readTranslation(path)
}

// Update replaces locale/list with body and copies keys that are new to
// the same list of every other locale. Keys already present in a sibling
// keep their value there. Only existing files can be updated.
func (s *TranslationService) Update(ctx context.Context, locale, list string, body Translation) (Translation, error) {
	if err := validateTranslation(body, ""); err != nil {
		return nil, err
	}
	path, err := s.path(locale, list)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := writeTranslation(path, body); err != nil {
		return nil, err
	}

	locales, err := s.Locales(ctx)
	if err != nil {
		return nil, err
	}
	for _, sibling := range locales {
		if sibling == locale {
			continue
		}
		siblingPath := filepath.Join(s.dir, sibling, list+".json")
		current, err := readTranslation(siblingPath)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("merge into %s: %w", sibling, err)
		}
		if err := writeTranslation(siblingPath, mergeTranslation(body, current)); err != nil {
			return nil, fmt.Errorf("merge into %s: %w", sibling, err)
		}
	}

	return readTranslation(path)
}

func (s *TranslationService) path(locale, list string) (string, error) {
	if !segmentPattern.MatchString(locale) || !segmentPattern.MatchString(list) {
		return "", store.ErrNotFound
	}
	return filepath.Join(s.dir, locale, list+".json"), nil
}

// mergeTranslation adds to dst every key of src it lacks, recursing into
// groups present on both sides.
func mergeTranslation(src, dst map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		existing, ok := dst[key]
		if !ok {
			dst[key] = value
			continue
		}
		srcGroup, srcIsGroup := value.(map[string]any)
		dstGroup, dstIsGroup := existing.(map[string]any)
		if srcIsGroup && dstIsGroup {
			dst[key] = mergeTranslation(srcGroup, dstGroup)
		}
	}
	return dst
}

func validateTranslation(body map[string]any, prefix string) error {
	for key, value := range body {
		switch v := value.(type) {
		case string:
		case map[string]any:
			if err := validateTranslation(v, prefix+key+"."); err != nil {
				return err
			}
		default:
			return fieldError(prefix+key, "must be a string or an object")
		}
	}
	return nil
}

func readTranslation(path string) (Translation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	content := Translation{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return content, nil
}

func writeTranslation(path string, content map[string]any) error {
	raw, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
