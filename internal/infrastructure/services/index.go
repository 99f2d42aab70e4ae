package services

import (
	"sort"
	"strings"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// MappingIndex groups active mappings by subscription topic (INBOUND) and by
// target API (OUTBOUND). It is built once per load and read concurrently.
type MappingIndex struct {
	inbound  map[string][]*mapping.Mapping
	outbound map[mapping.API][]*mapping.Mapping
	topics   []string
	all      []*mapping.Mapping
}

// NewMappingIndex creates an empty index.
func NewMappingIndex() *MappingIndex {
	return &MappingIndex{
		inbound:  make(map[string][]*mapping.Mapping),
		outbound: make(map[mapping.API][]*mapping.Mapping),
	}
}

// Add inserts a mapping. Inactive mappings are kept in All but never matched.
func (idx *MappingIndex) Add(m *mapping.Mapping) {
	idx.all = append(idx.all, m)
	if !m.Active {
		return
	}
	switch m.Direction {
	case mapping.Inbound:
		idx.inbound[m.MappingTopic] = append(idx.inbound[m.MappingTopic], m)
	case mapping.Outbound:
		idx.outbound[m.TargetAPI] = append(idx.outbound[m.TargetAPI], m)
	}
}

// Build sorts every bucket by id and collects the unique inbound topic filters.
func (idx *MappingIndex) Build() {
	byID := func(ms []*mapping.Mapping) {
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
	}

	idx.topics = idx.topics[:0]
	for topic, ms := range idx.inbound {
		byID(ms)
		idx.topics = append(idx.topics, topic)
	}
	sort.Strings(idx.topics)

	for _, ms := range idx.outbound {
		byID(ms)
	}
	byID(idx.all)
}

// MatchInbound returns the active INBOUND mappings whose topic filter matches
// topic. Exact filters come first, then filters with fewer wildcards, then id.
func (idx *MappingIndex) MatchInbound(topic string) []*mapping.Mapping {
	var out []*mapping.Mapping
	for _, filter := range idx.topics {
		if TopicMatches(filter, topic) {
			out = append(out, idx.inbound[filter]...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := wildcards(out[i].MappingTopic), wildcards(out[j].MappingTopic)
		if wi != wj {
			return wi < wj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MatchOutbound returns the active OUTBOUND mappings for api, including
// mappings registered for every API.
func (idx *MappingIndex) MatchOutbound(api mapping.API) []*mapping.Mapping {
	out := append([]*mapping.Mapping(nil), idx.outbound[api]...)
	if api != mapping.APIAll {
		out = append(out, idx.outbound[mapping.APIAll]...)
	}
	return out
}

// Topics returns the unique INBOUND topic filters, sorted.
func (idx *MappingIndex) Topics() []string {
	return idx.topics
}

// All returns every indexed mapping, sorted by id.
func (idx *MappingIndex) All() []*mapping.Mapping {
	return idx.all
}

// Len returns the number of indexed mappings.
func (idx *MappingIndex) Len() int {
	return len(idx.all)
}

// TopicMatches reports whether an MQTT topic filter matches topic. "+" matches
// exactly one level and a trailing "#" matches any remaining levels, including none.
func TopicMatches(filter, topic string) bool {
	if filter == "" {
		return false
	}
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}

func wildcards(filter string) int {
	n := 0
	for _, level := range strings.Split(filter, "/") {
		if level == "+" || level == "#" {
			n++
		}
	}
	return n
}
