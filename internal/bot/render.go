package bot

import (
	"github.com/rmolina/gamebind/internal/types"
)

// errorMessages maps engine error codes to stable user-facing text. Nothing
// here leaks store or transport internals. AMBIGUOUS_OUTCOME gets its own
// wording on purpose: the user must not read it as a plain failure.
var errorMessages = map[types.ErrorCode]string{
	types.ErrValidation:          "That doesn't look right. Check the command arguments.",
	types.ErrAlreadyBound:        "You already have a game account bound. Use /rebind to change it or /unbind first.",
	types.ErrNotBound:            "You have no game account bound. Use /bind to add one.",
	types.ErrHandleTaken:         "That game account is already bound to someone else.",
	types.ErrHandleNotFound:      "That game account doesn't exist. Check the handle and try again.",
	types.ErrInsufficientBalance: "You don't have enough points for that.",
	types.ErrSameIdentity:        "You can't transfer points to yourself.",
	types.ErrAlreadyCheckedIn:    "You already checked in today. Come back tomorrow!",
	types.ErrExternalUnavailable: "The game service is unreachable right now. Nothing was charged; try again in a moment.",
	types.ErrRedemptionFailed:    "The game rejected the recharge. Your points were refunded.",
	types.ErrAmbiguousOutcome:    "The recharge result is unclear. Your points are on hold while we verify with the game — do NOT retry; support will resolve it.",
	types.ErrStorageError:        "Something went wrong on our side. Please try again later.",
	types.ErrInternalError:       "Something went wrong on our side. Please try again later.",
}

// renderError converts any engine error into user-facing text
func renderError(err error) string {
	var engineErr *types.EngineError
	if types.As(err, &engineErr) {
		if msg, ok := errorMessages[engineErr.Code]; ok {
			return msg
		}
	}
	return "Something went wrong on our side. Please try again later."
}
