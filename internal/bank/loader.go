package bank

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a catalog from a single file or from every catalog file
// (.json, .yaml, .yml) under a directory. Topics from several files are
// merged in file-walk order; a topic defined twice is an error.
func Load(path string) (*Bank, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	var topics []Topic
	if !info.IsDir() {
		topics, err = loadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() || !isCatalogFile(p) {
				return nil
			}
			ts, err := loadFile(p)
			if err != nil {
				return err
			}
			topics = append(topics, ts...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	b, err := New(topics...)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("question bank loaded", "path", path, "topics", len(b.order))
	return b, nil
}

// Parse decodes a catalog document. YAML is a superset of JSON so both
// formats go through the same decoder.
func Parse(data []byte) ([]Topic, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	var cf catalogFile
	if err := root.Decode(&cf); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	order, err := topicOrder(cf, documentOrder(&root))
	if err != nil {
		return nil, err
	}

	topics := make([]Topic, 0, len(order))
	for _, id := range order {
		ct := cf.Topics[id]
		t := Topic{
			ID:        id,
			Theory:    ct.Theory,
			Questions: make(map[Difficulty][]Question, len(ct.Questions)),
		}
		for level, qs := range ct.Questions {
			d, err := ParseDifficulty(level)
			if err != nil {
				return nil, fmt.Errorf("topic %q: %w", id, err)
			}
			t.Questions[d] = qs
		}
		topics = append(topics, t)
	}
	return topics, nil
}

func loadFile(path string) ([]Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	topics, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return topics, nil
}

// topicOrder returns the explicit order list when present, otherwise the
// order in which topics appear in the document.
func topicOrder(cf catalogFile, inDocument []string) ([]string, error) {
	if len(cf.Order) == 0 {
		if len(inDocument) != len(cf.Topics) {
			return nil, fmt.Errorf("catalog lists %d topic keys, decoded %d", len(inDocument), len(cf.Topics))
		}
		return inDocument, nil
	}

	if len(cf.Order) != len(cf.Topics) {
		return nil, fmt.Errorf("order lists %d topics, catalog has %d", len(cf.Order), len(cf.Topics))
	}
	seen := make(map[string]bool, len(cf.Order))
	for _, id := range cf.Order {
		if _, ok := cf.Topics[id]; !ok {
			return nil, fmt.Errorf("order names unknown topic %q", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("order lists topic %q twice", id)
		}
		seen[id] = true
	}
	return cf.Order, nil
}

// documentOrder returns the keys of the top-level topics mapping as written.
func documentOrder(root *yaml.Node) []string {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "topics" {
			continue
		}
		topics := doc.Content[i+1]
		if topics.Kind != yaml.MappingNode {
			return nil
		}
		ids := make([]string, 0, len(topics.Content)/2)
		for j := 0; j+1 < len(topics.Content); j += 2 {
			ids = append(ids, topics.Content[j].Value)
		}
		return ids
	}
	return nil
}

func isCatalogFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
