package shared

// Portal permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermClientsView = "clients.view"
	PermClientsEdit = "clients.edit"

	PermAgreementsView = "agreements.view"
	PermAgreementsEdit = "agreements.edit"
	PermLedgerView     = "ledger.view"

	PermLogsView = "logs.view"
	PermLogsEdit = "logs.edit"

	PermTicketsView     = "tickets.view"
	PermTicketsEdit     = "tickets.edit"
	PermTicketsGenerate = "tickets.generate"

	PermIssuesView = "issues.view"
	PermIssuesEdit = "issues.edit"

	PermDocumentsView = "documents.view"
	PermDocumentsEdit = "documents.edit"

	PermPermissionsView = "permissions.view"
)

var readScopes = []string{
	PermClientsView,
	PermAgreementsView,
	PermLogsView,
	PermTicketsView,
	PermIssuesView,
	PermDocumentsView,
	PermPermissionsView,
}

// RoleScopes lists the permissions granted to role.
func RoleScopes(role Role) []string {
	switch role {
	case RoleAdmin:
		return append(append([]string{}, readScopes...),
			PermUsersView, PermUsersEdit,
			PermClientsEdit, PermAgreementsEdit, PermLedgerView,
			PermLogsEdit, PermTicketsEdit, PermTicketsGenerate,
			PermIssuesEdit, PermDocumentsEdit,
		)
	case RoleManager:
		return append(append([]string{}, readScopes...),
			PermUsersView,
			PermClientsEdit, PermAgreementsEdit, PermLedgerView,
			PermLogsEdit, PermTicketsEdit, PermTicketsGenerate,
			PermIssuesEdit, PermDocumentsEdit,
		)
	case RoleUser:
		return append(append([]string{}, readScopes...),
			PermLogsEdit, PermIssuesEdit, PermDocumentsEdit,
		)
	default:
		return nil
	}
}
