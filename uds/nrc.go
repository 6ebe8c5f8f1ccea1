package uds

// UDS negative response codes (ISO 14229-1).
const (
	NRCGeneralReject                          byte = 0x10
	NRCServiceNotSupported                    byte = 0x11
	NRCSubFunctionNotSupported                byte = 0x12
	NRCIncorrectMessageLength                 byte = 0x13
	NRCResponseTooLong                        byte = 0x14
	NRCBusyRepeatRequest                      byte = 0x21
	NRCConditionsNotCorrect                   byte = 0x22
	NRCRequestSequenceError                   byte = 0x24
	NRCNoResponseFromSubnetComponent          byte = 0x25
	NRCFailurePreventsExecution               byte = 0x26
	NRCRequestOutOfRange                      byte = 0x31
	NRCSecurityAccessDenied                   byte = 0x33
	NRCInvalidKey                             byte = 0x35
	NRCExceedNumberOfAttempts                 byte = 0x36
	NRCRequiredTimeDelayNotExpired            byte = 0x37
	NRCUploadDownloadNotAccepted              byte = 0x70
	NRCTransferDataSuspended                  byte = 0x71
	NRCGeneralProgrammingFailure              byte = 0x72
	NRCWrongBlockSequenceCounter              byte = 0x73
	NRCResponsePending                        byte = 0x78
	NRCSubFunctionNotSupportedInActiveSession byte = 0x7E
	NRCServiceNotSupportedInActiveSession     byte = 0x7F
)

var nrcDescriptions = map[byte]string{
	NRCGeneralReject:                          "general reject",
	NRCServiceNotSupported:                    "service not supported",
	NRCSubFunctionNotSupported:                "sub-function not supported",
	NRCIncorrectMessageLength:                 "incorrect message length or invalid format",
	NRCResponseTooLong:                        "response too long",
	NRCBusyRepeatRequest:                      "busy, repeat request",
	NRCConditionsNotCorrect:                   "conditions not correct",
	NRCRequestSequenceError:                   "request sequence error",
	NRCNoResponseFromSubnetComponent:          "no response from subnet component",
	NRCFailurePreventsExecution:               "failure prevents execution of requested action",
	NRCRequestOutOfRange:                      "request out of range",
	NRCSecurityAccessDenied:                   "security access denied",
	NRCInvalidKey:                             "invalid key",
	NRCExceedNumberOfAttempts:                 "exceeded number of attempts",
	NRCRequiredTimeDelayNotExpired:            "required time delay not expired",
	NRCUploadDownloadNotAccepted:              "upload/download not accepted",
	NRCTransferDataSuspended:                  "transfer data suspended",
	NRCGeneralProgrammingFailure:              "general programming failure",
	NRCWrongBlockSequenceCounter:              "wrong block sequence counter",
	NRCResponsePending:                        "response pending",
	NRCSubFunctionNotSupportedInActiveSession: "sub-function not supported in active session",
	NRCServiceNotSupportedInActiveSession:     "service not supported in active session",
}

// NRCDescription returns the human-readable meaning of a negative
// response code.
func NRCDescription(nrc byte) string {
	if desc, ok := nrcDescriptions[nrc]; ok {
		return desc
	}
	return "unknown negative response code"
}
