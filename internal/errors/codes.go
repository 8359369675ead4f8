package errors

// Error codes for the vamc compiler.
// These codes are used in error messages and documentation
// to provide consistent error identification across the toolchain.
//
// Error code ranges:
// E0001-E0099: Body validation errors
// E0100-E0199: Parse/preprocess errors
// E0200-E0299: Name/type resolution errors
// W0001-W0999: Warning codes (E0800-E0899 are also classed as warnings)
// E0900-E0999: Internal errors

const (
	// Body validation errors (E0001-E0099)

	// E0001: Contribution statement outside the analog block or in an
	// illegal context (conditioned on an analysis function, inside an event
	// control, ...)
	ErrorIllegalContribute = "E0001"

	// E0002: Access to a variable, nature, analog operator or analysis
	// function in a context where it is not legal
	ErrorIllegalCtxAccess = "E0002"

	// E0003: Write to an input-direction function argument
	ErrorWriteToInputArg = "E0003"

	// E0004: Parameter default references a parameter declared later
	ErrorIllegalParamAccess = "E0004"

	// E0005: Port expected (e.g. $port_connected on an internal node)
	ErrorExpectedPort = "E0005"

	// E0006: Potential access on a port-flow branch
	ErrorPotentialOfPortFlow = "E0006"

	// E0007: Node direction does not allow this access
	ErrorInvalidNodeDirection = "E0007"

	// E0008: $simparam in a constant context with a name outside the
	// whitelisted set
	ErrorConstSimparam = "E0008"

	// Parse/preprocess errors (E0100-E0199)

	// E0100: Lexical error
	ErrorLexical = "E0100"

	// E0101: Syntax error
	ErrorSyntax = "E0101"

	// Name/type resolution errors (E0200-E0299)

	// E0200: Unresolved path
	ErrorUnresolvedPath = "E0200"

	// E0201: Wrong kind of declaration for this position
	ErrorWrongKind = "E0201"

	// E0202: Duplicate attribute on a discipline or nature
	ErrorDuplicateAttribute = "E0202"

	// E0203: Multiple port-direction declarations for the same node
	ErrorMultipleDirections = "E0203"

	// E0204: Multiple disciplines for the same node
	ErrorMultipleDisciplines = "E0204"

	// E0205: Port without a direction
	ErrorPortWithoutDirection = "E0205"

	// E0206: Node without a discipline
	ErrorNodeWithoutDiscipline = "E0206"

	// E0207: Duplicate declaration
	ErrorDuplicateDeclaration = "E0207"

	// E0208: Type mismatch
	ErrorTypeMismatch = "E0208"

	// E0209: Call with invalid arguments
	ErrorInvalidArguments = "E0209"

	// Warning codes (W prefix)

	// W0001: Unused variable warning
	WarningUnusedVariable = "W0001"

	// Internal errors (E0900-E0999)

	// E0900: IR invariant violation (programmer error)
	ErrorInternalInvariant = "E0900"
)

// GetErrorDescription returns a human-readable description of the error code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorIllegalContribute:
		return "Contribution statements are only legal directly inside the analog block"
	case ErrorIllegalCtxAccess:
		return "This construct is not legal in the current context"
	case ErrorWriteToInputArg:
		return "Input-direction arguments cannot be written"
	case ErrorIllegalParamAccess:
		return "A parameter default may only reference parameters declared earlier"
	case ErrorExpectedPort:
		return "A port is required here"
	case ErrorPotentialOfPortFlow:
		return "Port-flow branches carry no potential"
	case ErrorInvalidNodeDirection:
		return "The node direction does not allow this access"
	case ErrorConstSimparam:
		return "$simparam in a constant context requires a known simulator parameter name"
	case ErrorLexical:
		return "Lexical error"
	case ErrorSyntax:
		return "Syntax error"
	case ErrorUnresolvedPath:
		return "Path does not resolve to a declaration"
	case ErrorWrongKind:
		return "Declaration has the wrong kind for this position"
	case ErrorDuplicateAttribute:
		return "Duplicate attribute"
	case ErrorMultipleDirections:
		return "Node has more than one direction declaration"
	case ErrorMultipleDisciplines:
		return "Node has more than one discipline"
	case ErrorPortWithoutDirection:
		return "Port has no direction declaration"
	case ErrorNodeWithoutDiscipline:
		return "Node has no discipline"
	case ErrorDuplicateDeclaration:
		return "Duplicate declaration found"
	case ErrorTypeMismatch:
		return "Expression type does not match expected type"
	case ErrorInvalidArguments:
		return "Call has invalid arguments"
	case WarningUnusedVariable:
		return "Variable is declared but never used"
	case ErrorInternalInvariant:
		return "Internal IR invariant violated"
	default:
		return "Unknown error code"
	}
}

// IsWarning returns true if the error code represents a warning rather than an error
func IsWarning(code string) bool {
	return code >= "E0800" && code < "E0900" || code[0] == 'W'
}

// GetErrorCategory returns the category of the error based on its code
func GetErrorCategory(code string) string {
	switch {
	case code >= "E0001" && code < "E0100":
		return "Body Validation"
	case code >= "E0100" && code < "E0200":
		return "Parse"
	case code >= "E0200" && code < "E0300":
		return "Name/Type Resolution"
	case code >= "E0800" && code < "E0900":
		return "Warning"
	case code >= "E0900" && code < "E1000":
		return "Internal"
	case code[0] == 'W':
		return "Warning"
	default:
		return "Unknown"
	}
}
