package record

// SeedDrafts are inserted into a fresh store when seeding is enabled.
func SeedDrafts() []Draft {
	welcome := "This is a sample TODO item to get you started"
	explore := "Check out the HTTP API at /api/todoitems"
	return []Draft{
		{Title: "Welcome to Net App", Description: &welcome},
		{Title: "Explore the API", Description: &explore},
	}
}
