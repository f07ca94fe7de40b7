package opcode

// Imm identifies the immediate operands an instruction takes in text form.
type Imm int

const (
	None Imm = iota
	MemArg
	I32
	I64
	F32
	F64
	Local
	Global
	Func
	Label
	BrTable
	CallIndirect
	Block
	Select
	RefNull
	Table
	Memory    // memory index, encoded as a single byte
	MemCopy   // two memory indices
	MemInit   // data index then memory index
	Data      // data index
	TableInit // element index then table index
	Elem      // element index
	TableCopy // two table indices
)

// Info describes how to encode one instruction.
type Info struct {
	Sub    uint32 // sub-opcode after the 0xFC prefix
	Imm    Imm
	Align  uint32 // natural alignment exponent for memory access
	Code   byte
	Prefix bool
}

// PrefixFC is the prefix byte for saturating truncation, bulk memory and
// table instructions.
const PrefixFC byte = 0xfc

// Lookup returns the encoding of the named instruction.
func Lookup(name string) (Info, bool) {
	info, ok := instructions[name]
	return info, ok
}

var instructions = map[string]Info{
	"unreachable":         {Code: 0x00},
	"nop":                 {Code: 0x01},
	"return":              {Code: 0x0f},
	"drop":                {Code: 0x1a},
	"ref.is_null":         {Code: 0xd1},
	"i32.eqz":             {Code: 0x45},
	"i32.eq":              {Code: 0x46},
	"i32.ne":              {Code: 0x47},
	"i32.lt_s":            {Code: 0x48},
	"i32.lt_u":            {Code: 0x49},
	"i32.gt_s":            {Code: 0x4a},
	"i32.gt_u":            {Code: 0x4b},
	"i32.le_s":            {Code: 0x4c},
	"i32.le_u":            {Code: 0x4d},
	"i32.ge_s":            {Code: 0x4e},
	"i32.ge_u":            {Code: 0x4f},
	"i64.eqz":             {Code: 0x50},
	"i64.eq":              {Code: 0x51},
	"i64.ne":              {Code: 0x52},
	"i64.lt_s":            {Code: 0x53},
	"i64.lt_u":            {Code: 0x54},
	"i64.gt_s":            {Code: 0x55},
	"i64.gt_u":            {Code: 0x56},
	"i64.le_s":            {Code: 0x57},
	"i64.le_u":            {Code: 0x58},
	"i64.ge_s":            {Code: 0x59},
	"i64.ge_u":            {Code: 0x5a},
	"f32.eq":              {Code: 0x5b},
	"f32.ne":              {Code: 0x5c},
	"f32.lt":              {Code: 0x5d},
	"f32.gt":              {Code: 0x5e},
	"f32.le":              {Code: 0x5f},
	"f32.ge":              {Code: 0x60},
	"f64.eq":              {Code: 0x61},
	"f64.ne":              {Code: 0x62},
	"f64.lt":              {Code: 0x63},
	"f64.gt":              {Code: 0x64},
	"f64.le":              {Code: 0x65},
	"f64.ge":              {Code: 0x66},
	"i32.clz":             {Code: 0x67},
	"i32.ctz":             {Code: 0x68},
	"i32.popcnt":          {Code: 0x69},
	"i32.add":             {Code: 0x6a},
	"i32.sub":             {Code: 0x6b},
	"i32.mul":             {Code: 0x6c},
	"i32.div_s":           {Code: 0x6d},
	"i32.div_u":           {Code: 0x6e},
	"i32.rem_s":           {Code: 0x6f},
	"i32.rem_u":           {Code: 0x70},
	"i32.and":             {Code: 0x71},
	"i32.or":              {Code: 0x72},
	"i32.xor":             {Code: 0x73},
	"i32.shl":             {Code: 0x74},
	"i32.shr_s":           {Code: 0x75},
	"i32.shr_u":           {Code: 0x76},
	"i32.rotl":            {Code: 0x77},
	"i32.rotr":            {Code: 0x78},
	"i64.clz":             {Code: 0x79},
	"i64.ctz":             {Code: 0x7a},
	"i64.popcnt":          {Code: 0x7b},
	"i64.add":             {Code: 0x7c},
	"i64.sub":             {Code: 0x7d},
	"i64.mul":             {Code: 0x7e},
	"i64.div_s":           {Code: 0x7f},
	"i64.div_u":           {Code: 0x80},
	"i64.rem_s":           {Code: 0x81},
	"i64.rem_u":           {Code: 0x82},
	"i64.and":             {Code: 0x83},
	"i64.or":              {Code: 0x84},
	"i64.xor":             {Code: 0x85},
	"i64.shl":             {Code: 0x86},
	"i64.shr_s":           {Code: 0x87},
	"i64.shr_u":           {Code: 0x88},
	"i64.rotl":            {Code: 0x89},
	"i64.rotr":            {Code: 0x8a},
	"f32.abs":             {Code: 0x8b},
	"f32.neg":             {Code: 0x8c},
	"f32.ceil":            {Code: 0x8d},
	"f32.floor":           {Code: 0x8e},
	"f32.trunc":           {Code: 0x8f},
	"f32.nearest":         {Code: 0x90},
	"f32.sqrt":            {Code: 0x91},
	"f32.add":             {Code: 0x92},
	"f32.sub":             {Code: 0x93},
	"f32.mul":             {Code: 0x94},
	"f32.div":             {Code: 0x95},
	"f32.min":             {Code: 0x96},
	"f32.max":             {Code: 0x97},
	"f32.copysign":        {Code: 0x98},
	"f64.abs":             {Code: 0x99},
	"f64.neg":             {Code: 0x9a},
	"f64.ceil":            {Code: 0x9b},
	"f64.floor":           {Code: 0x9c},
	"f64.trunc":           {Code: 0x9d},
	"f64.nearest":         {Code: 0x9e},
	"f64.sqrt":            {Code: 0x9f},
	"f64.add":             {Code: 0xa0},
	"f64.sub":             {Code: 0xa1},
	"f64.mul":             {Code: 0xa2},
	"f64.div":             {Code: 0xa3},
	"f64.min":             {Code: 0xa4},
	"f64.max":             {Code: 0xa5},
	"f64.copysign":        {Code: 0xa6},
	"i32.wrap_i64":        {Code: 0xa7},
	"i32.trunc_f32_s":     {Code: 0xa8},
	"i32.trunc_f32_u":     {Code: 0xa9},
	"i32.trunc_f64_s":     {Code: 0xaa},
	"i32.trunc_f64_u":     {Code: 0xab},
	"i64.extend_i32_s":    {Code: 0xac},
	"i64.extend_i32_u":    {Code: 0xad},
	"i64.trunc_f32_s":     {Code: 0xae},
	"i64.trunc_f32_u":     {Code: 0xaf},
	"i64.trunc_f64_s":     {Code: 0xb0},
	"i64.trunc_f64_u":     {Code: 0xb1},
	"f32.convert_i32_s":   {Code: 0xb2},
	"f32.convert_i32_u":   {Code: 0xb3},
	"f32.convert_i64_s":   {Code: 0xb4},
	"f32.convert_i64_u":   {Code: 0xb5},
	"f32.demote_f64":      {Code: 0xb6},
	"f64.convert_i32_s":   {Code: 0xb7},
	"f64.convert_i32_u":   {Code: 0xb8},
	"f64.convert_i64_s":   {Code: 0xb9},
	"f64.convert_i64_u":   {Code: 0xba},
	"f64.promote_f32":     {Code: 0xbb},
	"i32.reinterpret_f32": {Code: 0xbc},
	"i64.reinterpret_f64": {Code: 0xbd},
	"f32.reinterpret_i32": {Code: 0xbe},
	"f64.reinterpret_i64": {Code: 0xbf},
	"i32.extend8_s":       {Code: 0xc0},
	"i32.extend16_s":      {Code: 0xc1},
	"i64.extend8_s":       {Code: 0xc2},
	"i64.extend16_s":      {Code: 0xc3},
	"i64.extend32_s":      {Code: 0xc4},
	"i32.load":            {Code: 0x28, Imm: MemArg, Align: 2},
	"i64.load":            {Code: 0x29, Imm: MemArg, Align: 3},
	"f32.load":            {Code: 0x2a, Imm: MemArg, Align: 2},
	"f64.load":            {Code: 0x2b, Imm: MemArg, Align: 3},
	"i32.load8_s":         {Code: 0x2c, Imm: MemArg, Align: 0},
	"i32.load8_u":         {Code: 0x2d, Imm: MemArg, Align: 0},
	"i32.load16_s":        {Code: 0x2e, Imm: MemArg, Align: 1},
	"i32.load16_u":        {Code: 0x2f, Imm: MemArg, Align: 1},
	"i64.load8_s":         {Code: 0x30, Imm: MemArg, Align: 0},
	"i64.load8_u":         {Code: 0x31, Imm: MemArg, Align: 0},
	"i64.load16_s":        {Code: 0x32, Imm: MemArg, Align: 1},
	"i64.load16_u":        {Code: 0x33, Imm: MemArg, Align: 1},
	"i64.load32_s":        {Code: 0x34, Imm: MemArg, Align: 2},
	"i64.load32_u":        {Code: 0x35, Imm: MemArg, Align: 2},
	"i32.store":           {Code: 0x36, Imm: MemArg, Align: 2},
	"i64.store":           {Code: 0x37, Imm: MemArg, Align: 3},
	"f32.store":           {Code: 0x38, Imm: MemArg, Align: 2},
	"f64.store":           {Code: 0x39, Imm: MemArg, Align: 3},
	"i32.store8":          {Code: 0x3a, Imm: MemArg, Align: 0},
	"i32.store16":         {Code: 0x3b, Imm: MemArg, Align: 1},
	"i64.store8":          {Code: 0x3c, Imm: MemArg, Align: 0},
	"i64.store16":         {Code: 0x3d, Imm: MemArg, Align: 1},
	"i64.store32":         {Code: 0x3e, Imm: MemArg, Align: 2},
	"block":               {Code: 0x02, Imm: Block},
	"loop":                {Code: 0x03, Imm: Block},
	"if":                  {Code: 0x04, Imm: Block},
	"else":                {Code: 0x05},
	"end":                 {Code: 0x0b},
	"br":                  {Code: 0x0c, Imm: Label},
	"br_if":               {Code: 0x0d, Imm: Label},
	"br_table":            {Code: 0x0e, Imm: BrTable},
	"call":                {Code: 0x10, Imm: Func},
	"call_indirect":       {Code: 0x11, Imm: CallIndirect},
	"select":              {Code: 0x1b, Imm: Select},
	"local.get":           {Code: 0x20, Imm: Local},
	"local.set":           {Code: 0x21, Imm: Local},
	"local.tee":           {Code: 0x22, Imm: Local},
	"global.get":          {Code: 0x23, Imm: Global},
	"global.set":          {Code: 0x24, Imm: Global},
	"table.get":           {Code: 0x25, Imm: Table},
	"table.set":           {Code: 0x26, Imm: Table},
	"memory.size":         {Code: 0x3f, Imm: Memory},
	"memory.grow":         {Code: 0x40, Imm: Memory},
	"i32.const":           {Code: 0x41, Imm: I32},
	"i64.const":           {Code: 0x42, Imm: I64},
	"f32.const":           {Code: 0x43, Imm: F32},
	"f64.const":           {Code: 0x44, Imm: F64},
	"ref.null":            {Code: 0xd0, Imm: RefNull},
	"ref.func":            {Code: 0xd2, Imm: Func},
	"i32.trunc_sat_f32_s": {Code: PrefixFC, Prefix: true, Sub: 0},
	"i32.trunc_sat_f32_u": {Code: PrefixFC, Prefix: true, Sub: 1},
	"i32.trunc_sat_f64_s": {Code: PrefixFC, Prefix: true, Sub: 2},
	"i32.trunc_sat_f64_u": {Code: PrefixFC, Prefix: true, Sub: 3},
	"i64.trunc_sat_f32_s": {Code: PrefixFC, Prefix: true, Sub: 4},
	"i64.trunc_sat_f32_u": {Code: PrefixFC, Prefix: true, Sub: 5},
	"i64.trunc_sat_f64_s": {Code: PrefixFC, Prefix: true, Sub: 6},
	"i64.trunc_sat_f64_u": {Code: PrefixFC, Prefix: true, Sub: 7},
	"memory.init":         {Code: PrefixFC, Prefix: true, Sub: 8, Imm: MemInit},
	"data.drop":           {Code: PrefixFC, Prefix: true, Sub: 9, Imm: Data},
	"memory.copy":         {Code: PrefixFC, Prefix: true, Sub: 10, Imm: MemCopy},
	"memory.fill":         {Code: PrefixFC, Prefix: true, Sub: 11, Imm: Memory},
	"table.init":          {Code: PrefixFC, Prefix: true, Sub: 12, Imm: TableInit},
	"elem.drop":           {Code: PrefixFC, Prefix: true, Sub: 13, Imm: Elem},
	"table.copy":          {Code: PrefixFC, Prefix: true, Sub: 14, Imm: TableCopy},
	"table.grow":          {Code: PrefixFC, Prefix: true, Sub: 15, Imm: Table},
	"table.size":          {Code: PrefixFC, Prefix: true, Sub: 16, Imm: Table},
	"table.fill":          {Code: PrefixFC, Prefix: true, Sub: 17, Imm: Table},
}
