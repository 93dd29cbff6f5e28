package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Compile Errors (E100-E199)
	// ============================================

	"E100": {
		Category: CategoryCompile,
		Message:  "Unexpected character in tag",
	},
	"E101": {
		Category:   CategoryCompile,
		Message:    "Invalid escape sequence in text",
		Suggestion: `Outside tags only \{ and \\ may follow a backslash`,
	},
	"E102": {
		Category:   CategoryCompile,
		Message:    "Invalid escape sequence in string",
		Suggestion: `Inside strings use \", \\, \n, \r or \t`,
	},
	"E103": {
		Category: CategoryCompile,
		Message:  "Invalid number literal",
	},
	"E104": {
		Category:   CategoryCompile,
		Message:    "Unterminated string literal",
		Suggestion: `Close the string with a double quote before the end of the tag`,
	},
	"E105": {
		Category:   CategoryCompile,
		Message:    "Unclosed tag",
		Suggestion: "Every {$ must be closed with $}",
	},
	"E110": {
		Category: CategoryCompile,
		Message:  "END without matching FOR",
	},
	"E111": {
		Category:   CategoryCompile,
		Message:    "Unclosed FOR loop",
		Suggestion: "Close the loop with {$END$}",
	},
	"E112": {
		Category:   CategoryCompile,
		Message:    "Invalid FOR tag",
		Suggestion: "Use {$FOR variable start end [step]$}",
	},
	"E113": {
		Category: CategoryCompile,
		Message:  "Unknown tag",
	},
	"E114": {
		Category: CategoryCompile,
		Message:  "Empty tag",
	},
	"E115": {
		Category: CategoryCompile,
		Message:  "Unexpected element in END tag",
	},

	// ============================================
	// Runtime Errors (E200-E299)
	// ============================================

	"E200": {
		Category: CategoryRuntime,
		Message:  "Insufficient operands",
	},
	"E201": {
		Category: CategoryRuntime,
		Message:  "Non-numeric operand",
	},
	"E202": {
		Category: CategoryRuntime,
		Message:  "Unknown variable",
	},
	"E203": {
		Category: CategoryRuntime,
		Message:  "Unknown function",
	},
	"E204": {
		Category: CategoryRuntime,
		Message:  "Unknown operator",
	},
	"E205": {
		Category: CategoryRuntime,
		Message:  "Division by zero",
	},
	"E206": {
		Category: CategoryRuntime,
		Message:  "Invalid function argument",
	},
	"E207": {
		Category: CategoryRuntime,
		Message:  "Response header already sent",
	},
	"E208": {
		Category: CategoryRuntime,
		Message:  "Variable stack underflow",
	},
	"E209": {
		Category:   CategoryRuntime,
		Message:    "Loop step must be positive",
		Suggestion: "A FOR loop runs while the variable is <= the end value, so the step must move it upward.",
	},

	// ============================================
	// Protocol Errors (E300-E399)
	// ============================================

	"E300": {
		Category: CategoryProtocol,
		Message:  "Malformed request line",
	},
	"E301": {
		Category: CategoryProtocol,
		Message:  "Method not allowed",
	},
	"E302": {
		Category: CategoryProtocol,
		Message:  "HTTP version not supported",
	},
	"E303": {
		Category: CategoryProtocol,
		Message:  "Malformed header",
	},
	"E304": {
		Category: CategoryProtocol,
		Message:  "Request header too large",
	},
	"E305": {
		Category: CategoryProtocol,
		Message:  "Connection closed before request head was complete",
	},

	// ============================================
	// Resource Errors (E400-E499)
	// ============================================

	"E400": {
		Category: CategoryResource,
		Message:  "File not found",
	},
	"E401": {
		Category: CategoryResource,
		Message:  "Path escapes document root",
	},
	"E402": {
		Category: CategoryResource,
		Message:  "Private path requested from outside",
	},
	"E403": {
		Category: CategoryResource,
		Message:  "Worker not found",
	},

	// ============================================
	// Config Errors (E500-E599)
	// ============================================

	"E500": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Suggestion: "Create smarthttp.json or pass --config",
	},
	"E501": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	"E502": {
		Category: CategoryConfig,
		Message:  "Invalid properties file",
	},
	"E503": {
		Category: CategoryConfig,
		Message:  "Unknown worker",
	},
	"E504": {
		Category: CategoryConfig,
		Message:  "Unsupported session store",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
