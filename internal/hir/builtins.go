package hir

// Builtin enumerates the resolved callees the lowering recognizes. The
// signature table drives argument checking in the validator and context
// legality (analog operators are only legal directly inside the analog
// block).
type Builtin uint8

const (
	BuiltinNone Builtin = iota

	// pure math
	BuiltinAbs
	BuiltinMin
	BuiltinMax
	BuiltinSqrt
	BuiltinExp
	BuiltinLimExp
	BuiltinLn
	BuiltinLog
	BuiltinSin
	BuiltinCos
	BuiltinTan
	BuiltinAsin
	BuiltinAcos
	BuiltinAtan
	BuiltinSinh
	BuiltinCosh
	BuiltinTanh
	BuiltinPow
	BuiltinAtan2
	BuiltinHypot
	BuiltinFloor
	BuiltinCeil

	// analog operators
	BuiltinDdt
	BuiltinDdx
	BuiltinIdt
	BuiltinIdtMod
	BuiltinAbsDelay
	BuiltinTransition
	BuiltinSlew
	BuiltinLaplaceND
	BuiltinLaplaceNP
	BuiltinLaplaceZD
	BuiltinLaplaceZP
	BuiltinZiND
	BuiltinZiNP
	BuiltinZiZD
	BuiltinZiZP
	BuiltinWhiteNoise
	BuiltinFlickerNoise
	BuiltinNoiseTable
	BuiltinAcStim
	BuiltinLimit

	// analysis-context queries
	BuiltinTemperature
	BuiltinVt
	BuiltinSimParam
	BuiltinSimParamStr
	BuiltinParamGiven
	BuiltinPortConnected
	BuiltinMfactor
	BuiltinAnalysis

	// tasks
	BuiltinStop
	BuiltinFinish
	BuiltinDisplay
	BuiltinStrobe
	BuiltinWrite
	BuiltinFatal
	BuiltinWarning
)

// BuiltinClass drives context checking.
type BuiltinClass uint8

const (
	ClassMath BuiltinClass = iota
	ClassAnalogOperator
	ClassAnalysisFun
	ClassTask
)

// BuiltinSig is the resolved signature of a builtin.
type BuiltinSig struct {
	Builtin Builtin
	Class   BuiltinClass
	MinArgs int
	MaxArgs int // -1 for variadic
	Result  Type
}

var builtinSigs = map[string]BuiltinSig{
	"abs":    {BuiltinAbs, ClassMath, 1, 1, TypeReal},
	"min":    {BuiltinMin, ClassMath, 2, 2, TypeReal},
	"max":    {BuiltinMax, ClassMath, 2, 2, TypeReal},
	"sqrt":   {BuiltinSqrt, ClassMath, 1, 1, TypeReal},
	"exp":    {BuiltinExp, ClassMath, 1, 1, TypeReal},
	"limexp": {BuiltinLimExp, ClassMath, 1, 1, TypeReal},
	"ln":     {BuiltinLn, ClassMath, 1, 1, TypeReal},
	"log":    {BuiltinLog, ClassMath, 1, 1, TypeReal},
	"sin":    {BuiltinSin, ClassMath, 1, 1, TypeReal},
	"cos":    {BuiltinCos, ClassMath, 1, 1, TypeReal},
	"tan":    {BuiltinTan, ClassMath, 1, 1, TypeReal},
	"asin":   {BuiltinAsin, ClassMath, 1, 1, TypeReal},
	"acos":   {BuiltinAcos, ClassMath, 1, 1, TypeReal},
	"atan":   {BuiltinAtan, ClassMath, 1, 1, TypeReal},
	"sinh":   {BuiltinSinh, ClassMath, 1, 1, TypeReal},
	"cosh":   {BuiltinCosh, ClassMath, 1, 1, TypeReal},
	"tanh":   {BuiltinTanh, ClassMath, 1, 1, TypeReal},
	"pow":    {BuiltinPow, ClassMath, 2, 2, TypeReal},
	"atan2":  {BuiltinAtan2, ClassMath, 2, 2, TypeReal},
	"hypot":  {BuiltinHypot, ClassMath, 2, 2, TypeReal},
	"floor":  {BuiltinFloor, ClassMath, 1, 1, TypeReal},
	"ceil":   {BuiltinCeil, ClassMath, 1, 1, TypeReal},

	"ddt":           {BuiltinDdt, ClassAnalogOperator, 1, 2, TypeReal},
	"ddx":           {BuiltinDdx, ClassAnalogOperator, 2, 2, TypeReal},
	"idt":           {BuiltinIdt, ClassAnalogOperator, 1, 3, TypeReal},
	"idtmod":        {BuiltinIdtMod, ClassAnalogOperator, 1, 4, TypeReal},
	"absdelay":      {BuiltinAbsDelay, ClassAnalogOperator, 2, 3, TypeReal},
	"transition":    {BuiltinTransition, ClassAnalogOperator, 1, 5, TypeReal},
	"slew":          {BuiltinSlew, ClassAnalogOperator, 1, 3, TypeReal},
	"laplace_nd":    {BuiltinLaplaceND, ClassAnalogOperator, 3, -1, TypeReal},
	"laplace_np":    {BuiltinLaplaceNP, ClassAnalogOperator, 3, -1, TypeReal},
	"laplace_zd":    {BuiltinLaplaceZD, ClassAnalogOperator, 3, -1, TypeReal},
	"laplace_zp":    {BuiltinLaplaceZP, ClassAnalogOperator, 3, -1, TypeReal},
	"zi_nd":         {BuiltinZiND, ClassAnalogOperator, 4, -1, TypeReal},
	"zi_np":         {BuiltinZiNP, ClassAnalogOperator, 4, -1, TypeReal},
	"zi_zd":         {BuiltinZiZD, ClassAnalogOperator, 4, -1, TypeReal},
	"zi_zp":         {BuiltinZiZP, ClassAnalogOperator, 4, -1, TypeReal},
	"white_noise":   {BuiltinWhiteNoise, ClassAnalogOperator, 1, 2, TypeReal},
	"flicker_noise": {BuiltinFlickerNoise, ClassAnalogOperator, 2, 3, TypeReal},
	"noise_table":   {BuiltinNoiseTable, ClassAnalogOperator, 1, 2, TypeReal},
	"ac_stim":       {BuiltinAcStim, ClassAnalogOperator, 0, 3, TypeReal},
	"$limit":        {BuiltinLimit, ClassAnalogOperator, 1, -1, TypeReal},

	"$temperature":    {BuiltinTemperature, ClassAnalysisFun, 0, 0, TypeReal},
	"$vt":             {BuiltinVt, ClassAnalysisFun, 0, 1, TypeReal},
	"$simparam":       {BuiltinSimParam, ClassAnalysisFun, 1, 2, TypeReal},
	"$simparam$str":   {BuiltinSimParamStr, ClassAnalysisFun, 1, 1, TypeString},
	"$param_given":    {BuiltinParamGiven, ClassAnalysisFun, 1, 1, TypeBool},
	"$port_connected": {BuiltinPortConnected, ClassAnalysisFun, 1, 1, TypeBool},
	"$mfactor":        {BuiltinMfactor, ClassAnalysisFun, 0, 0, TypeReal},
	"analysis":        {BuiltinAnalysis, ClassAnalysisFun, 1, -1, TypeBool},

	"$stop":    {BuiltinStop, ClassTask, 0, 1, TypeReal},
	"$finish":  {BuiltinFinish, ClassTask, 0, 1, TypeReal},
	"$display": {BuiltinDisplay, ClassTask, 0, -1, TypeReal},
	"$strobe":  {BuiltinStrobe, ClassTask, 0, -1, TypeReal},
	"$write":   {BuiltinWrite, ClassTask, 0, -1, TypeReal},
	"$fatal":   {BuiltinFatal, ClassTask, 0, -1, TypeReal},
	"$warning": {BuiltinWarning, ClassTask, 0, -1, TypeReal},
}

// LookupBuiltin resolves a call name to its signature.
func LookupBuiltin(name string) (BuiltinSig, bool) {
	sig, ok := builtinSigs[name]
	return sig, ok
}

// ConstSimparamNames whitelists $simparam names legal in constant contexts.
var ConstSimparamNames = map[string]Type{
	"minr":               TypeReal,
	"imelt":              TypeReal,
	"scale":              TypeReal,
	"simulatorSubversion": TypeReal,
	"simulatorVersion":   TypeReal,
	"tnom":               TypeReal,
	"cwd":                TypeString,
	"module":             TypeString,
	"instance":           TypeString,
	"path":               TypeString,
}
