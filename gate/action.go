package gate

// Action describes the kind of operation a subject wants to perform.
type Action string

// CRUD actions.
const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
)

// Lifecycle actions on workflow records.
const (
	ActionSubmit  Action = "submit"
	ActionReview  Action = "review"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionArchive Action = "archive"
	ActionExport  Action = "export"
)
