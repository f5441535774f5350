package poll

// Assemble combines parsed poll data with the metadata of the post that
// carries it. Option ids are their positions. The result has no ID yet; the
// store assigns one.
func Assemble(post Post, parsed Parsed) Poll {
	opts := make([]Option, len(parsed.Options))
	for i, title := range parsed.Options {
		opts[i] = Option{ID: i, Title: title}
	}
	settings := parsed.Settings.Clone()
	if settings == nil {
		settings = Settings{}
	}
	return Poll{
		Title:     settings.Title(),
		UID:       post.UID,
		TID:       post.TID,
		PID:       post.PID,
		Deleted:   false,
		Ended:     false,
		Timestamp: post.Timestamp,
		Settings:  settings,
		Options:   opts,
	}
}
