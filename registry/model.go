package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

type Sibling struct {
	Filename string `json:"rfilename"`
}

type SafetensorsInfo struct {
	Parameters map[string]int64 `json:"parameters"`
	Total      int64            `json:"total"`
}

type ModelConfig struct {
	Architectures []string       `json:"architectures"`
	ModelType     string         `json:"model_type"`
	AutoMap       map[string]any `json:"auto_map"`
}

// ModelInfo is the subset of the registry's model metadata the
// submission checks rely on. SHA is the resolved immutable revision.
type ModelInfo struct {
	ID          string           `json:"id"`
	SHA         string           `json:"sha"`
	Gated       json.RawMessage  `json:"gated"`
	Siblings    []Sibling        `json:"siblings"`
	Safetensors *SafetensorsInfo `json:"safetensors"`
	Config      ModelConfig      `json:"config"`
	CardData    map[string]any   `json:"cardData"`
}

// IsGated reports whether the repository requires access approval.
// The registry encodes it as false or as the approval mode string.
func (m *ModelInfo) IsGated() bool {
	g := bytes.TrimSpace(m.Gated)
	return len(g) > 0 && !bytes.Equal(g, []byte("false")) && !bytes.Equal(g, []byte("null"))
}

func (m *ModelInfo) HasFile(name string) bool {
	for _, s := range m.Siblings {
		if s.Filename == name {
			return true
		}
	}
	return false
}

// IsAdapter reports whether the repository holds a PEFT adapter.
func (m *ModelInfo) IsAdapter() bool {
	return m.HasFile("adapter_config.json")
}

func (m *ModelInfo) NeedsRemoteCode() bool {
	return len(m.Config.AutoMap) > 0
}

// TotalParams returns the safetensors parameter count, or 0 when unknown.
func (m *ModelInfo) TotalParams() int64 {
	if m.Safetensors == nil {
		return 0
	}
	if m.Safetensors.Total > 0 {
		return m.Safetensors.Total
	}
	var sum int64
	for _, n := range m.Safetensors.Parameters {
		sum += n
	}
	return sum
}

// ModelCard is a parsed README.md: YAML front matter plus the text body.
type ModelCard struct {
	Data map[string]any
	Text string
}

// License returns the declared license. A license_name and license_link
// pair counts as a license when the license key itself is absent.
func (c *ModelCard) License() (string, bool) {
	if lic, ok := c.Data["license"]; ok && lic != nil {
		switch v := lic.(type) {
		case string:
			return v, v != ""
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			return strings.Join(parts, ","), len(parts) > 0
		default:
			return fmt.Sprint(v), true
		}
	}
	name, hasName := c.Data["license_name"]
	_, hasLink := c.Data["license_link"]
	if hasName && hasLink {
		return fmt.Sprint(name), true
	}
	return "", false
}

// TextLength counts characters of the card body, excluding front matter.
func (c *ModelCard) TextLength() int {
	return utf8.RuneCountInString(c.Text)
}

func parseModelCard(content []byte) (*ModelCard, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	card := &ModelCard{Data: map[string]any{}}

	if !strings.HasPrefix(text, "---\n") {
		card.Text = text
		return card, nil
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		card.Text = text
		return card, nil
	}

	front := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	if err := yaml.Unmarshal([]byte(front), &card.Data); err != nil {
		return nil, fmt.Errorf("failed to parse model card metadata: %w", err)
	}
	if card.Data == nil {
		card.Data = map[string]any{}
	}
	card.Text = body
	return card, nil
}
