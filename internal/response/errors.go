package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrUserNotFound       ErrCode = "USER_NOT_FOUND"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrUserAccessOnly  ErrCode = "USER_ACCESS_ONLY"
	ErrAdminAccessOnly ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotStarted    ErrCode = "EXAM_NOT_STARTED"
	ErrExamCompleted     ErrCode = "EXAM_ALREADY_COMPLETED"
	ErrSessionInactive   ErrCode = "SESSION_INACTIVE"
	ErrSessionNotFound   ErrCode = "SESSION_NOT_FOUND"
	ErrUnknownQuestion   ErrCode = "UNKNOWN_QUESTION"
	ErrUnknownOption     ErrCode = "UNKNOWN_OPTION"
	ErrSubmitInProgress  ErrCode = "SUBMIT_IN_PROGRESS"
	ErrSubmitFailed      ErrCode = "SUBMIT_FAILED"
	ErrStartFailed       ErrCode = "START_FAILED"
	ErrUpstream          ErrCode = "UPSTREAM_ERROR"
	ErrUpstreamMalformed ErrCode = "UPSTREAM_MALFORMED"

	// ─── Admin authoring ───────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"
	ErrInvalidOptions  ErrCode = "INVALID_OPTIONS"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
// Student-facing codes are localized to Bengali; admin-only codes stay English.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid username or password."
	case ErrUserNotFound:
		return "এই ফোন নম্বরে কোনো অ্যাকাউন্ট পাওয়া যায়নি।"
	case ErrSessionInvalidated:
		return "আপনার সেশন শেষ হয়েছে। অনুগ্রহ করে আবার লগইন করুন।"
	case ErrTokenRequired:
		return "প্রমাণীকরণ টোকেন প্রয়োজন।"
	case ErrTokenInvalid:
		return "প্রমাণীকরণ টোকেন সঠিক নয়।"

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrUserAccessOnly:
		return "এই অংশটি শুধুমাত্র শিক্ষার্থীদের জন্য।"
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "তথ্য যাচাই ব্যর্থ হয়েছে। অনুগ্রহ করে আপনার ইনপুট পরীক্ষা করুন।"
	case ErrInvalidID:
		return "আইডি সঠিক নয়।"
	case ErrInvalidPayload:
		return "অনুরোধের তথ্য সঠিক নয়।"

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "তথ্য পাওয়া যায়নি।"

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "এই পরীক্ষাটি এখন দেওয়া যাবে না।"
	case ErrExamNotStarted:
		return "আপনি এখনও এই পরীক্ষা শুরু করেননি।"
	case ErrExamCompleted:
		return "আপনি ইতিমধ্যে এই পরীক্ষা সম্পন্ন করেছেন।"
	case ErrSessionInactive:
		return "পরীক্ষার সময় শেষ অথবা উত্তরপত্র জমা দেওয়া হয়েছে।"
	case ErrSessionNotFound:
		return "কোনো চলমান পরীক্ষা পাওয়া যায়নি।"
	case ErrUnknownQuestion:
		return "প্রশ্নটি এই পরীক্ষার অংশ নয়।"
	case ErrUnknownOption:
		return "বিকল্পটি এই প্রশ্নের অংশ নয়।"
	case ErrSubmitInProgress:
		return "উত্তরপত্র জমা দেওয়া হচ্ছে, অনুগ্রহ করে অপেক্ষা করুন।"
	case ErrSubmitFailed:
		return "পরীক্ষা জমা দিতে সমস্যা হয়েছে। আবার চেষ্টা করুন।"
	case ErrStartFailed:
		return "পরীক্ষা শুরু করতে সমস্যা হয়েছে। আবার চেষ্টা করুন।"
	case ErrUpstream:
		return "সার্ভারে সমস্যা হয়েছে। কিছুক্ষণ পর আবার চেষ্টা করুন।"
	case ErrUpstreamMalformed:
		return "সার্ভার থেকে অপ্রত্যাশিত তথ্য এসেছে।"

	// ─── Admin authoring ───────────────────────────────────────────────
	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "Unsupported file type. Use .xlsx, .yaml, .yml or .json."
	case ErrFileTooLarge:
		return "File size exceeds the limit."
	case ErrInvalidOptions:
		return "A question needs 2 to 6 options with exactly one marked correct."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "অনেক বেশি অনুরোধ। কিছুক্ষণ পর আবার চেষ্টা করুন।"

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "সার্ভারের অভ্যন্তরীণ ত্রুটি হয়েছে।"
	default:
		return "একটি অপ্রত্যাশিত ত্রুটি হয়েছে।"
	}
}
