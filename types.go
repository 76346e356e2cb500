package portal

import (
	"encoding/json"
)

// Collection names and singleton slots match the deployed document data; do
// not rename without migrating the store.
const (
	CollectionMembers   = "members"
	CollectionBlogPosts = "blogPosts"
	CollectionNewsItems = "newsItems"
	CollectionTools     = "tools"
	CollectionMetrics   = "metrics"
	CollectionMessages  = "messages"
	CollectionConfig    = "config"

	SlotMetaTags       = "metaTags"
	SlotInternalEmails = "internalEmails"
)

const MaxSpecializations = 5

// PlaceholderName substitutes a missing or blank member name at decode time.
const PlaceholderName = "(sem nome)"

// StringList tolerates the legacy scalar representation of specialization:
// a bare string decodes as a one-element list.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	*l = StringList{}
	return nil
}

type Member struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	Bio            string     `json:"bio"`
	Specialization StringList `json:"specialization"`
	PhotoURL       string     `json:"photoUrl"`
	CvURL          string     `json:"cvUrl,omitempty"`
	LinkedinURL    string     `json:"linkedinUrl,omitempty"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	ProfileURL     string     `json:"profileUrl,omitempty"`
}

type BlogPost struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Date     string `json:"date"`
	Content  string `json:"content"`
	Excerpt  string `json:"excerpt"`
	ImageURL string `json:"imageUrl"`
}

type NewsItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Source  string `json:"source"`
	Date    string `json:"date"`
	Summary string `json:"summary"`
	Link    string `json:"link,omitempty"`
}

type Tool struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FileURL     string `json:"fileUrl"`
	Date        string `json:"date"`
	IsGenerated bool   `json:"isGenerated,omitempty"`
}

type MetaConfig struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Keywords      string `json:"keywords"`
	OgTitle       string `json:"ogTitle"`
	OgDescription string `json:"ogDescription"`
	OgImage       string `json:"ogImage"`
	OgURL         string `json:"ogUrl"`
}

type Metric struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// MessageStatus values are stored verbatim; the Portuguese strings are the
// wire format of the deployed data.
type MessageStatus string

const (
	StatusNew       MessageStatus = "Novo"
	StatusResponded MessageStatus = "Respondido"
	StatusArchived  MessageStatus = "Arquivado"
)

type Message struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Company          string        `json:"company"`
	Email            string        `json:"email"`
	Subject          string        `json:"subject"`
	Content          string        `json:"content"`
	Status           MessageStatus `json:"status"`
	Reply            string        `json:"reply,omitempty"`
	CreatedAt        string        `json:"createdAt"`
	RespondedAt      string        `json:"respondedAt,omitempty"`
	NotifiedAt       string        `json:"notifiedAt,omitempty"`
	NotifiedSenderAt string        `json:"notifiedSenderAt,omitempty"`
}

// RecipientConfig is the internalEmails singleton document.
type RecipientConfig struct {
	Emails []string `json:"emails"`
}

// Document is one stored record as delivered by a snapshot.
type Document struct {
	ID    string
	Value json.RawMessage
}

// Snapshot is the complete current content of a subscribed collection.
type Snapshot []Document

type EventAction string

const (
	EventSet    EventAction = "set"
	EventUpdate EventAction = "update"
	EventDelete EventAction = "delete"
)

// Event announces a change to a collection. Subscribers treat it as a
// re-query trigger only; the payload carries no document body.
type Event struct {
	Collection string      `json:"collection"`
	DocID      string      `json:"docId"`
	Action     EventAction `json:"action"`
}

// Decoding below never fails: malformed stored documents degrade to
// per-field defaults so a bad record cannot take the site down.

func DecodeMember(doc Document) Member {
	var m Member
	_ = json.Unmarshal(doc.Value, &m)
	if m.ID == "" {
		m.ID = doc.ID
	}
	if m.Name == "" {
		m.Name = PlaceholderName
	}
	if m.Specialization == nil {
		m.Specialization = StringList{}
	}
	return m
}

func DecodeBlogPost(doc Document) BlogPost {
	var p BlogPost
	_ = json.Unmarshal(doc.Value, &p)
	if p.ID == "" {
		p.ID = doc.ID
	}
	return p
}

func DecodeNewsItem(doc Document) NewsItem {
	var n NewsItem
	_ = json.Unmarshal(doc.Value, &n)
	if n.ID == "" {
		n.ID = doc.ID
	}
	return n
}

func DecodeTool(doc Document) Tool {
	var t Tool
	_ = json.Unmarshal(doc.Value, &t)
	if t.ID == "" {
		t.ID = doc.ID
	}
	return t
}

func DecodeMetaConfig(doc Document) MetaConfig {
	var c MetaConfig
	_ = json.Unmarshal(doc.Value, &c)
	return c
}

func DecodeMetric(doc Document) Metric {
	var m Metric
	_ = json.Unmarshal(doc.Value, &m)
	if m.ID == "" {
		m.ID = doc.ID
	}
	return m
}

func DecodeMessage(doc Document) Message {
	var m Message
	_ = json.Unmarshal(doc.Value, &m)
	if m.ID == "" {
		m.ID = doc.ID
	}
	if m.Status == "" {
		m.Status = StatusNew
	}
	return m
}

func DecodeRecipients(doc Document) []string {
	var c RecipientConfig
	_ = json.Unmarshal(doc.Value, &c)
	if c.Emails == nil {
		return []string{}
	}
	return c.Emails
}
