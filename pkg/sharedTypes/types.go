package sharedTypes

// Collection is a remote folder of wallpaper videos.
type Collection struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Bucket      string `json:"bucket"`
	Folder      string `json:"folder"`
}
