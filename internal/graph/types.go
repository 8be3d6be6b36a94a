package graph

// TokenResponse mirrors the identity platform token endpoint JSON.
// RefreshToken is empty when the server chose not to rotate it.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
}

// DriveInfo is the drive metadata cached alongside a drive's credentials.
type DriveInfo struct {
	ID         string
	OwnerEmail string
	Total      int64
	Used       int64
	Remaining  int64
}

// ListOptions shapes a children or search listing.
type ListOptions struct {
	// Select is the comma-separated field list ($select).
	Select string
	// Top is the page size ($top).
	Top int
}
