package domain

import "time"

// Kind is the type tag of a detected entity
type Kind string

const (
	KindDomain   Kind = "domain"
	KindIP       Kind = "ip"
	KindURL      Kind = "url"
	KindEmail    Kind = "email"
	KindHash     Kind = "hash"
	KindASN      Kind = "asn"
	KindPhone    Kind = "phone"
	KindUsername Kind = "username"
	KindWallet   Kind = "wallet"
	KindHost     Kind = "host"
	KindHeaders  Kind = "headers"
	KindTxHash   Kind = "tx_hash"

	// KindNone marks cards usable without any detected entity (catalog browsing)
	KindNone Kind = "none"
)

// Kinds lists the closed set of kinds
var Kinds = []Kind{
	KindDomain, KindIP, KindURL, KindEmail, KindHash, KindASN, KindPhone,
	KindUsername, KindWallet, KindHost, KindHeaders, KindTxHash, KindNone,
}

// ParseKind maps a string onto a known Kind
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Entity is a typed, validated and normalized token found in free text
type Entity struct {
	Kind  Kind   `json:"kind"`
	Raw   string `json:"raw"`
	Value string `json:"value"`
}

// LabeledSample is a training phrase for the intent classifier
type LabeledSample struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Tool is a catalog entry
type Tool struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Favicon     string   `json:"favicon,omitempty" yaml:"favicon"`
	Tags        []string `json:"tags,omitempty" yaml:"tags"`
	Cards       []Card   `json:"cards,omitempty" yaml:"cards"`
}

// Card is an action belonging to a Tool
type Card struct {
	Title       string   `json:"title" yaml:"title"`
	Desc        string   `json:"desc,omitempty" yaml:"desc"`
	URLTemplate string   `json:"url_template" yaml:"url_template"`
	Category    string   `json:"category,omitempty" yaml:"category"`
	Tags        []string `json:"tags,omitempty" yaml:"tags"`
	InputTypes  []Kind   `json:"input_types" yaml:"input_types"`
}

// Accepts reports whether the card declares the given input kind
func (c Card) Accepts(k Kind) bool {
	for _, t := range c.InputTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Mode is the operating mode of a search
type Mode string

const (
	ModeCatalog       Mode = "catalog"
	ModeInvestigation Mode = "investigation"
)

// ToolMatch pairs a tool with the subset of its cards relevant to a search
type ToolMatch struct {
	Tool  Tool   `json:"tool"`
	Cards []Card `json:"cards"`
}

// Intent is the classifier's best guess for free text
type Intent struct {
	Category string             `json:"category"`
	Scores   map[string]float64 `json:"scores"`
}

// SearchResult is the output of one search cycle
type SearchResult struct {
	Mode     Mode        `json:"mode"`
	Entities []Entity    `json:"entities"`
	Matches  []ToolMatch `json:"matches"`
	Intent   *Intent     `json:"intent,omitempty"`
}
