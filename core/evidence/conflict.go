package evidence

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/leofalp/railgraph/internal/utils"
)

// Claim is one topic/statement pair extracted from a payload.
type Claim struct {
	Topic string `json:"topic"`
	Text  string `json:"text"`
}

// SourcedClaim is a claim attributed to the node that made it.
type SourcedClaim struct {
	Source    string `json:"source"`
	RoleLabel string `json:"roleLabel,omitempty"`
	Text      string `json:"text"`
}

// ConflictEntry groups divergent claims made by different sources about the
// same topic.
type ConflictEntry struct {
	Topic   string         `json:"topic"`
	Claims  []SourcedClaim `json:"claims"`
	Sources []string       `json:"sources"`
}

const maxTopicWords = 6

var (
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s*`)
	// Keys that describe the envelope rather than the answer.
	metaKeys = map[string]bool{"text": true, "summary": true, "meta": true, "provider": true, "mode": true, "claims": true}
)

// ExtractClaims infers topic-keyed claims from a payload.
//
// Structured payloads contribute an explicit "claims" list
// ([{topic, claim|text}]) and every top-level scalar field (key as topic).
// Text, whether the payload itself or its "text" field, contributes every
// "Topic: statement" line whose topic is at most a few words.
func ExtractClaims(payload any) []Claim {
	claims := make([]Claim, 0)
	seen := make(map[string]bool)
	add := func(topic, text string) {
		key := TopicKey(topic)
		text = strings.TrimSpace(text)
		if key == "" || text == "" || seen[key] {
			return
		}
		seen[key] = true
		claims = append(claims, Claim{Topic: key, Text: text})
	}

	switch typed := payload.(type) {
	case string:
		for _, claim := range claimsFromText(typed) {
			add(claim.Topic, claim.Text)
		}
	case map[string]any:
		if list, ok := typed["claims"].([]any); ok {
			for _, item := range list {
				entry, ok := item.(map[string]any)
				if !ok {
					continue
				}
				topic, _ := entry["topic"].(string)
				text, _ := entry["claim"].(string)
				if text == "" {
					text, _ = entry["text"].(string)
				}
				add(topic, text)
			}
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if metaKeys[strings.ToLower(key)] {
				continue
			}
			switch value := typed[key].(type) {
			case string:
				add(key, value)
			case float64, bool, int, int64:
				add(key, utils.JSONToString(value))
			}
		}
		if text, ok := typed["text"].(string); ok {
			for _, claim := range claimsFromText(text) {
				add(claim.Topic, claim.Text)
			}
		}
	}
	return claims
}

func claimsFromText(text string) []Claim {
	claims := make([]Claim, 0)
	for _, line := range strings.Split(text, "\n") {
		line = bulletPrefix.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.Trim(line, "*_ ")
		topic, statement, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		topic = strings.Trim(strings.TrimSpace(topic), "*_#")
		if strings.Contains(topic, "://") || len(strings.Fields(topic)) == 0 || len(strings.Fields(topic)) > maxTopicWords {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(statement), "//") {
			continue
		}
		claims = append(claims, Claim{Topic: topic, Text: strings.Trim(strings.TrimSpace(statement), "*_ ")})
	}
	return claims
}

// TopicKey normalizes a topic for grouping: lowercase letters and digits,
// every other run of characters collapsed to one space.
func TopicKey(topic string) string {
	var builder strings.Builder
	lastSpace := true
	for _, char := range strings.ToLower(topic) {
		if unicode.IsLetter(char) || unicode.IsDigit(char) {
			builder.WriteRune(char)
			lastSpace = false
			continue
		}
		if !lastSpace {
			builder.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(builder.String())
}

func normalizeClaim(text string) string {
	return strings.TrimRight(strings.ToLower(utils.CollapseWhitespace(text)), ".!;,")
}

// BuildConflictLedger compares the claims of the given packets, taking only
// the latest packet per source, and returns one entry per topic on which at
// least two sources state different things. Entries are sorted by topic;
// claims within an entry follow packet order.
func BuildConflictLedger(packets []Envelope) []ConflictEntry {
	latest := make(map[string]Envelope, len(packets))
	order := make([]string, 0, len(packets))
	for _, packet := range packets {
		if _, seen := latest[packet.NodeID]; !seen {
			order = append(order, packet.NodeID)
		}
		latest[packet.NodeID] = packet
	}

	byTopic := make(map[string][]SourcedClaim)
	for _, source := range order {
		packet := latest[source]
		claims := packet.Claims
		if claims == nil {
			claims = ExtractClaims(packet.Payload)
		}
		for _, claim := range claims {
			byTopic[claim.Topic] = append(byTopic[claim.Topic], SourcedClaim{
				Source:    source,
				RoleLabel: packet.RoleLabel,
				Text:      claim.Text,
			})
		}
	}

	ledger := make([]ConflictEntry, 0)
	for topic, claims := range byTopic {
		if len(claims) < 2 {
			continue
		}
		distinct := make(map[string]bool, len(claims))
		for _, claim := range claims {
			distinct[normalizeClaim(claim.Text)] = true
		}
		if len(distinct) < 2 {
			continue
		}
		sources := make([]string, 0, len(claims))
		for _, claim := range claims {
			sources = append(sources, claim.Source)
		}
		ledger = append(ledger, ConflictEntry{Topic: topic, Claims: claims, Sources: sources})
	}
	sort.Slice(ledger, func(left, right int) bool {
		return ledger[left].Topic < ledger[right].Topic
	})
	return ledger
}
