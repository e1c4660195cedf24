package access

import "github.com/trezcool/college/core/identity"

// CredentialMessage maps a provider rejection code to the message shown on the login form.
func CredentialMessage(code identity.Code) string {
	switch code {
	case identity.CodeInvalidEmail:
		return "Invalid email address format."
	case identity.CodeUserDisabled:
		return "This account has been disabled. Please contact the administrator."
	case identity.CodeUserNotFound:
		return "No account found with this email address."
	case identity.CodeWrongPassword:
		return "Incorrect password. Please try again."
	case identity.CodeInvalidCredential:
		return "Invalid email or password."
	case identity.CodeTooManyRequests:
		return "Too many failed login attempts. Please wait a moment and try again."
	case identity.CodeNetworkRequestFailed:
		return "Network error. Please check your connection and try again."
	default:
		return "Login failed. Please try again."
	}
}
