package mailtank

// Tag is a subscriber tag known to the Mailtank project.
type Tag struct {
	Name string `json:"name"`
}

// Mailing describes a created mailing as reported by the API.
type Mailing struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	ETA    string `json:"eta"`
	URL    string `json:"url"`
}

// Target selects the recipients of a mailing.
type Target struct {
	// Tags selects subscribers carrying all of the listed tags.
	Tags []string `json:"tags,omitempty"`
	// UnsubscribeTags are removed from a subscriber on unsubscribe.
	UnsubscribeTags []string `json:"unsubscribe_tags,omitempty"`
}

// Attachment is a file attached to a mailing. Data is BASE64-encoded.
type Attachment struct {
	Name     string `json:"name"`
	Data     string `json:"data"`
	Mimetype string `json:"mimetype"`
}

type tagsPage struct {
	Objects    []Tag `json:"objects"`
	PagesTotal int   `json:"pages_total"`
}
