package expr

// Heads the harness and the engines agree on.
const (
	// Success shapes.
	Table Symbol = "Table"
	List  Symbol = "List"
	Data  Symbol = "Data"

	// Failure shape.
	ErrorWhenEvaluatingExpression Symbol = "ErrorWhenEvaluatingExpression"

	// DDL.
	CreateTable   Symbol = "CreateTable"
	DropTable     Symbol = "DropTable"
	Load          Symbol = "Load"
	LoadDataTable Symbol = "LoadDataTable"
	AddConstraint Symbol = "AddConstraint"

	// Routing.
	EvaluateInEngines Symbol = "EvaluateInEngines"
	ReleaseEngines    Symbol = "ReleaseEngines"

	// SpanDescriptor heads the placeholder nodes produced by Debug.
	SpanDescriptor Symbol = "Span"
)

// NewError builds the conventional failure value returned by engines.
func NewError(context Expression, message string) *Complex {
	return New(ErrorWhenEvaluatingExpression, context, String(message))
}

// IsError reports whether e is a failure value.
func IsError(e Expression) bool {
	return HasHead(e, ErrorWhenEvaluatingExpression)
}
