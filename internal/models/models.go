package models

// All lists every table in migration order.
func All() []any {
	return []any{
		&Profile{},
		&Contact{},
		&Group{},
		&GroupMember{},
		&Resource{},
		&UploadedFile{},
		&Message{},
		&MessageMaterial{},
		&MessageFile{},
	}
}
