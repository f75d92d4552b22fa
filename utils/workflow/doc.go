// Package workflow parses and serializes workflow scripts.
//
// A script is a small YAML subset. Tabs are expanded to two spaces and CRLF
// line endings are normalized before indentation is measured:
//
//	script   = { blank | comment | toplevel } .
//	toplevel = "nodes:" [ " []" ] NL list
//	         | "defaults:" NL mapping
//	         | "name:" value NL
//	         | list .                          (a bare list at column 0)
//	list     = { INDENT(i) "-" [ " " pair ] NL { INDENT(>i) pair NL } } .
//	mapping  = { INDENT(>0) pair NL } .
//	pair     = key ":" ( " " scalar | " |" [ "-" | "+" ] NL block(k+2) | "" ) .
//	block(m) = { INDENT(>=m) text NL | blank NL } .
//	scalar   = "true" | "false" | "null" | "~" | number | dquoted | squoted | plain .
//	comment  = INDENT "#" text .
//
// A block keeps every line indented at least m columns, with m columns
// stripped, where k is the indentation of its key. Blank lines inside a
// block are kept as empty lines; trailing blank lines are dropped and the
// block has no final newline. A "#" after a value is part of the value.
//
// Double-quoted scalars understand \" \\ \/ \n \t \r \0 and \uXXXX. In
// single-quoted scalars '' is a literal quote. Plain numbers become float64.
//
// Node fields are id, type, expr, lang, prompt, system, model, temperature,
// max_tokens, expect, output, append_chunk and message. Several spellings are
// accepted for most of them (outputKey, maxTokens, promptTemplate and so on);
// Serialize always writes the names above. Unknown fields are kept in
// Node.Extra and reported as warnings.
package workflow
