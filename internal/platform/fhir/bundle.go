package fhir

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// SearchBundleParams holds pagination and link information for a search bundle.
type SearchBundleParams struct {
	BaseURL  string
	QueryStr string
	Count    int
	Offset   int
	Total    int
}

// NewSearchBundle creates a searchset Bundle with self/next/previous links.
// Resources are expected to marshal to objects carrying resourceType and id.
func NewSearchBundle(resources []map[string]interface{}, params SearchBundleParams) (*Bundle, error) {
	entries, err := bundleEntries(resources, "match")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &params.Total,
		Timestamp:    &now,
		Link:         buildPaginationLinks(params),
		Entry:        entries,
	}, nil
}

// NewCollectionBundle groups resources in the order given.
func NewCollectionBundle(resources ...map[string]interface{}) (*Bundle, error) {
	entries, err := bundleEntries(resources, "")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "collection",
		Timestamp:    &now,
		Entry:        entries,
	}, nil
}

func bundleEntries(resources []map[string]interface{}, mode string) ([]BundleEntry, error) {
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal bundle entry %d: %w", i, err)
		}
		entries[i] = BundleEntry{FullURL: fullURL(r), Resource: raw}
		if mode != "" {
			entries[i].Search = &BundleSearch{Mode: mode}
		}
	}
	return entries, nil
}

func fullURL(m map[string]interface{}) string {
	rt, _ := m["resourceType"].(string)
	id, _ := m["id"].(string)
	if rt != "" && id != "" {
		return FormatReference(rt, id)
	}
	return ""
}

// buildPaginationLinks creates self, next, and previous links for searchset bundles.
func buildPaginationLinks(params SearchBundleParams) []BundleLink {
	links := []BundleLink{
		{
			Relation: "self",
			URL:      fmt.Sprintf("%s?%s_count=%d&_offset=%d", params.BaseURL, conditionalAmpersand(params.QueryStr), params.Count, params.Offset),
		},
	}

	nextOffset := params.Offset + params.Count
	if nextOffset < params.Total {
		links = append(links, BundleLink{
			Relation: "next",
			URL:      fmt.Sprintf("%s?%s_count=%d&_offset=%d", params.BaseURL, conditionalAmpersand(params.QueryStr), params.Count, nextOffset),
		})
	}

	if params.Offset > 0 {
		prevOffset := params.Offset - params.Count
		if prevOffset < 0 {
			prevOffset = 0
		}
		links = append(links, BundleLink{
			Relation: "previous",
			URL:      fmt.Sprintf("%s?%s_count=%d&_offset=%d", params.BaseURL, conditionalAmpersand(params.QueryStr), params.Count, prevOffset),
		})
	}

	return links
}

func conditionalAmpersand(qs string) string {
	if qs == "" {
		return ""
	}
	return qs + "&"
}

// CapabilityStatement is the server's metadata resource.
type CapabilityStatement struct {
	ResourceType   string            `json:"resourceType"`
	Status         string            `json:"status"`
	Date           string            `json:"date"`
	Kind           string            `json:"kind"`
	FHIRVersion    string            `json:"fhirVersion"`
	Format         []string          `json:"format"`
	Implementation *CSImplementation `json:"implementation,omitempty"`
	Rest           []CSRest          `json:"rest"`
}

type CSImplementation struct {
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

type CSRest struct {
	Mode      string        `json:"mode"`
	Resource  []CSResource  `json:"resource"`
	Operation []CSOperation `json:"operation,omitempty"`
}

type CSResource struct {
	Type        string          `json:"type"`
	Interaction []CSInteraction `json:"interaction"`
	SearchParam []CSSearchParam `json:"searchParam,omitempty"`
}

type CSInteraction struct {
	Code string `json:"code"`
}

type CSSearchParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type CSOperation struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// NewCapabilityStatement describes a server exposing the given resources and operations.
func NewCapabilityStatement(baseURL, description string, resources []CSResource, operations []CSOperation) *CapabilityStatement {
	return &CapabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Date:         time.Now().UTC().Format("2006-01-02"),
		Kind:         "instance",
		FHIRVersion:  "5.0.0",
		Format:       []string{"json"},
		Implementation: &CSImplementation{
			Description: description,
			URL:         baseURL,
		},
		Rest: []CSRest{
			{
				Mode:      "server",
				Resource:  resources,
				Operation: operations,
			},
		},
	}
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}
