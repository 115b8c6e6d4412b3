package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// entityFile is the document form of an entity file. A bare list of
// entities is accepted as well.
type entityFile struct {
	Entities []models.Entity `yaml:"entities"`
}

// LoadEntities reads entities from a YAML or JSON file. Entities without an
// id get one derived from their data.
func LoadEntities(path string) ([]models.Entity, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading entity file: %w", err)
	}
	return ParseEntities(b)
}

// ParseEntities decodes a YAML or JSON entity document.
func ParseEntities(b []byte) ([]models.Entity, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("parsing entity file: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var entities []models.Entity
	switch doc := root.Content[0]; doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&entities); err != nil {
			return nil, fmt.Errorf("decoding entity list: %w", err)
		}
	case yaml.MappingNode:
		var f entityFile
		if err := doc.Decode(&f); err != nil {
			return nil, fmt.Errorf("decoding entity document: %w", err)
		}
		entities = f.Entities
	default:
		return nil, fmt.Errorf("entity file must be a list or a document with an entities key")
	}

	for i := range entities {
		if entities[i].ID == "" && entities[i].Type != "" {
			entities[i].ID = EntityID(entities[i].Type, entities[i].Data)
		}
	}
	return entities, nil
}

// FileSource replays entities from local files, for manual input and
// offline comparison.
type FileSource struct {
	paths  []string
	logger *slog.Logger
}

// NewFileSource creates a file source over the given paths.
func NewFileSource(paths []string, logger *slog.Logger) *FileSource {
	return &FileSource{paths: paths, logger: logger}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Fetch implements Source. since is ignored.
func (s *FileSource) Fetch(_ context.Context, _ time.Time) (Batch, error) {
	var out []models.Entity
	for _, p := range s.paths {
		ents, err := LoadEntities(p)
		if err != nil {
			return Batch{}, fmt.Errorf("%s: %w", p, err)
		}
		s.logger.Debug("entity file loaded", "path", p, "entities", len(ents))
		out = append(out, ents...)
	}
	return Batch{Items: len(s.paths), Entities: out}, nil
}
