package database

// Extraction is one logged extraction attempt. Exactly one of RecordJSON
// and ErrorKind is set.
type Extraction struct {
	ID           string
	URL          string
	RecordJSON   *string
	ErrorKind    *string
	ErrorMessage *string
	CreatedAt    *string
}

// Article is one generated article with its audit outcome. A nil
// SpellIssuesJSON means the audit was unavailable.
type Article struct {
	ID              string
	ProductURL      string
	RequestJSON     string
	Markdown        string
	SpellIssuesJSON *string
	SpellcheckError *string
	CreatedAt       *string
}

// ImageJob is one entry of the image submission log.
type ImageJob struct {
	ID            string
	ProviderJobID *string
	Prompt        string
	AspectRatio   string
	Status        string
	ImageURL      *string
	Error         *string
	CreatedAt     *string
	UpdatedAt     *string
}
