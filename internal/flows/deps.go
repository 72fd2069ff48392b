package flows

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Credentials CredentialDeps
	Issue       IssueDeps
	Refresh     RefreshDeps
	Logout      LogoutDeps
	Register    RegisterDeps
	Validate    ValidateDeps
}
