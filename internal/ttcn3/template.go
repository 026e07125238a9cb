package ttcn3

import (
	"fmt"
	"sort"

	re2 "github.com/wasilibs/go-re2/pkg/regexp"
)

// Value is a decoded TTCN-3 message value: scalars, ordered lists, and
// two flavors of structured value (unordered named fields for records,
// a single named alternative for choices).
type Value struct {
	Scalar  any
	IsList  bool
	List    []Value
	IsField bool // record or choice
	Fields  map[string]Value
	IsChoice bool
	Tag      string
}

// Scalar builds a plain scalar value.
func ScalarValue(v any) Value { return Value{Scalar: v} }

// ListValue builds an ordered list value.
func ListValue(items ...Value) Value { return Value{IsList: true, List: items} }

// RecordValue builds an unordered record value.
func RecordValue(fields map[string]Value) Value { return Value{IsField: true, Fields: fields} }

// ChoiceValue builds a tagged choice value.
func ChoiceValue(tag string, inner Value) Value {
	return Value{IsField: true, IsChoice: true, Tag: tag, Fields: map[string]Value{tag: inner}}
}

// Codec decodes a raw payload into a Value for codec-wrapped template
// matching.
type Codec interface {
	Decode(payload any) (Value, error)
}

// conditionKind names a condition template's matching rule.
type conditionKind string

const (
	condAny         conditionKind = "any"
	condAnyOrNone   conditionKind = "any_or_none"
	condPattern     conditionKind = "pattern"
	condLength      conditionKind = "length"
	condBetween     conditionKind = "between"
	condSuperset    conditionKind = "superset"
	condSubset      conditionKind = "subset"
	condSet         conditionKind = "set"
	condComplement  conditionKind = "complement"
	condIfPresent   conditionKind = "ifpresent"
	condOmit        conditionKind = "omit"
	condAnd         conditionKind = "and"
	condOr          conditionKind = "or"
	condNot         conditionKind = "not"
	condContains    conditionKind = "contains"
	condExtract     conditionKind = "extract"
	condGreaterThan conditionKind = "greater_than"
	condLowerThan   conditionKind = "lower_than"
)

// Template is a sealed sum type: a tree of scalar/record/choice/list
// nodes, condition wrappers, codec wrappers and extractors. The zero
// value matches anything (TTCN-3's "?" wildcard).
type Template struct {
	isScalar bool
	scalar   any

	isList   bool
	list     []Template

	isRecord bool
	fields   map[string]Template

	isChoice   bool
	choiceTag  string
	choiceBody *Template

	isCondition bool
	cond        conditionKind
	inner       []Template // condition operands (and/or/not/extract/length/contains)
	lo, hi      float64    // between/greater_than/lower_than bounds
	pattern     string
	extractName string

	isCodec   bool
	codec     Codec
	codecBody *Template
}

// TemplateAny matches any present value. It does not accept an absent
// record field, and inside a list it stands for exactly one element;
// TemplateAnyOrNone covers both of those cases.
func TemplateAny() Template { return Template{isCondition: true, cond: condAny} }

// TemplateAnyOrNone additionally matches an absent/omitted value.
func TemplateAnyOrNone() Template { return Template{isCondition: true, cond: condAnyOrNone} }

// TemplateScalar matches a literal scalar value.
func TemplateScalar(v any) Template { return Template{isScalar: true, scalar: v} }

// TemplateRecord matches an unordered set of named fields.
func TemplateRecord(fields map[string]Template) Template {
	return Template{isRecord: true, fields: fields}
}

// TemplateChoice matches a tagged alternative.
func TemplateChoice(tag string, body Template) Template {
	return Template{isChoice: true, choiceTag: tag, choiceBody: &body}
}

// TemplateList matches an ordered list, where TemplateAnyOrNone()
// elements act as TTCN-3's wildcard "*" spanning zero or more items.
func TemplateList(items ...Template) Template { return Template{isList: true, list: items} }

// TemplatePattern matches a string scalar against a regular expression,
// compiled with a RE2-compatible WASM engine rather than Go's stdlib
// regexp package, for linear-time matching guarantees on patterns
// supplied by untrusted test scripts.
func TemplatePattern(expr string) Template {
	return Template{isCondition: true, cond: condPattern, pattern: expr}
}

// TemplateLength matches len(message) against inner.
func TemplateLength(inner Template) Template {
	return Template{isCondition: true, cond: condLength, inner: []Template{inner}}
}

// TemplateBetween matches a numeric scalar in [lo, hi].
func TemplateBetween(lo, hi float64) Template {
	return Template{isCondition: true, cond: condBetween, lo: lo, hi: hi}
}

// TemplateGreaterThan matches a numeric scalar strictly greater than n.
func TemplateGreaterThan(n float64) Template {
	return Template{isCondition: true, cond: condGreaterThan, lo: n}
}

// TemplateLowerThan matches a numeric scalar strictly lower than n.
func TemplateLowerThan(n float64) Template {
	return Template{isCondition: true, cond: condLowerThan, hi: n}
}

// TemplateSet/Subset/Superset match list membership; Set requires a
// one-to-one cover between template and message elements.
func TemplateSet(items ...Template) Template      { return Template{isCondition: true, cond: condSet, inner: items} }
func TemplateSubset(items ...Template) Template   { return Template{isCondition: true, cond: condSubset, inner: items} }
func TemplateSuperset(items ...Template) Template { return Template{isCondition: true, cond: condSuperset, inner: items} }

// TemplateComplement matches any scalar not equal to one of values.
func TemplateComplement(values ...Template) Template {
	return Template{isCondition: true, cond: condComplement, inner: values}
}

// TemplateAnd/Or/Not combine conditions.
func TemplateAnd(parts ...Template) Template { return Template{isCondition: true, cond: condAnd, inner: parts} }
func TemplateOr(parts ...Template) Template  { return Template{isCondition: true, cond: condOr, inner: parts} }
func TemplateNot(part Template) Template     { return Template{isCondition: true, cond: condNot, inner: []Template{part}} }

// TemplateContains matches a list value containing an element matching inner.
func TemplateContains(inner Template) Template {
	return Template{isCondition: true, cond: condContains, inner: []Template{inner}}
}

// TemplateIfPresent accepts inner matching or the field being absent.
func TemplateIfPresent(inner Template) Template {
	return Template{isCondition: true, cond: condIfPresent, inner: []Template{inner}}
}

// TemplateOmit matches only an absent field.
func TemplateOmit() Template { return Template{isCondition: true, cond: condOmit} }

// TemplateExtract binds the sub-match of inner to name in
// MatchResult.Extracted.
func TemplateExtract(inner Template, name string) Template {
	return Template{isCondition: true, cond: condExtract, inner: []Template{inner}, extractName: name}
}

// TemplateCodec decodes the payload with codec before matching body
// against the decoded form.
func TemplateCodec(codec Codec, body Template) Template {
	return Template{isCodec: true, codec: codec, codecBody: &body}
}

// MatchResult is the outcome of Match: whether it matched, the decoded
// value (extra message fields preserved), and the path to the first
// mismatched field for diagnostic logging.
type MatchResult struct {
	Matched       bool
	Decoded       Value
	MismatchPath  string
	Extracted     map[string]Value
}

// Match recursively matches tmpl against msg.
func Match(tmpl Template, msg Value) MatchResult {
	extracted := make(map[string]Value)
	matched, decoded, path := match(tmpl, msg, "$", extracted)
	return MatchResult{Matched: matched, Decoded: decoded, MismatchPath: path, Extracted: extracted}
}

func match(tmpl Template, msg Value, path string, extracted map[string]Value) (bool, Value, string) {
	switch {
	case tmpl.isCodec:
		decoded, err := tmpl.codec.Decode(msg.Scalar)
		if err != nil {
			return false, Value{}, path
		}
		return match(*tmpl.codecBody, decoded, path, extracted)

	case tmpl.isCondition:
		return matchCondition(tmpl, msg, path, extracted)

	case tmpl.isChoice:
		if !msg.IsChoice || msg.Tag != tmpl.choiceTag {
			return false, Value{}, path
		}
		inner := msg.Fields[msg.Tag]
		ok, decodedInner, p := match(*tmpl.choiceBody, inner, path+"."+tmpl.choiceTag, extracted)
		if !ok {
			return false, Value{}, p
		}
		return true, ChoiceValue(tmpl.choiceTag, decodedInner), ""

	case tmpl.isRecord:
		return matchRecord(tmpl, msg, path, extracted)

	case tmpl.isList:
		return matchList(tmpl.list, msg, path, extracted)

	case tmpl.isScalar:
		if msg.Scalar == tmpl.scalar {
			return true, ScalarValue(msg.Scalar), ""
		}
		return false, Value{}, path

	default:
		// zero-value Template: the "?" wildcard, matches anything.
		return true, msg, ""
	}
}

func matchRecord(tmpl Template, msg Value, path string, extracted map[string]Value) (bool, Value, string) {
	decodedFields := make(map[string]Value, len(msg.Fields))
	for k, v := range msg.Fields {
		decodedFields[k] = v
	}
	for name, fieldTmpl := range tmpl.fields {
		val, present := msg.Fields[name]
		if !present {
			if isAbsenceAccepting(fieldTmpl) {
				continue
			}
			return false, Value{}, path + "." + name
		}
		ok, decoded, p := match(fieldTmpl, val, path+"."+name, extracted)
		if !ok {
			return false, Value{}, p
		}
		decodedFields[name] = decoded
	}
	return true, RecordValue(decodedFields), ""
}

func isAbsenceAccepting(tmpl Template) bool {
	if !tmpl.isCondition {
		return false
	}
	switch tmpl.cond {
	case condAnyOrNone, condOmit, condIfPresent:
		return true
	default:
		return false
	}
}

func matchList(tmplItems []Template, msg Value, path string, extracted map[string]Value) (bool, Value, string) {
	if !msg.IsList {
		return false, Value{}, path
	}
	decoded, ok := matchListPositions(tmplItems, msg.List, extracted)
	if !ok {
		return false, Value{}, path + "[]"
	}
	return true, ListValue(decoded...), ""
}

// matchListPositions matches a template list against a message list
// positionally, backtracking across any_or_none wildcards so a
// wildcard may absorb zero or more elements.
func matchListPositions(tmplItems []Template, msgItems []Value, extracted map[string]Value) ([]Value, bool) {
	if len(tmplItems) == 0 {
		if len(msgItems) == 0 {
			return nil, true
		}
		return nil, false
	}

	head := tmplItems[0]
	if head.isCondition && head.cond == condAnyOrNone {
		// Try consuming 0, 1, 2, ... elements with the wildcard.
		for n := 0; n <= len(msgItems); n++ {
			rest, ok := matchListPositions(tmplItems[1:], msgItems[n:], extracted)
			if ok {
				return append(append([]Value(nil), msgItems[:n]...), rest...), true
			}
		}
		return nil, false
	}

	if head.isCondition && head.cond == condIfPresent {
		if len(msgItems) == 0 {
			return matchListPositions(tmplItems[1:], msgItems, extracted)
		}
	}

	if len(msgItems) == 0 {
		return nil, false
	}
	ok, decoded, _ := match(head, msgItems[0], "$[]", extracted)
	if !ok {
		return nil, false
	}
	rest, ok := matchListPositions(tmplItems[1:], msgItems[1:], extracted)
	if !ok {
		return nil, false
	}
	return append([]Value{decoded}, rest...), true
}

func matchCondition(tmpl Template, msg Value, path string, extracted map[string]Value) (bool, Value, string) {
	switch tmpl.cond {
	case condAny:
		return true, msg, ""
	case condAnyOrNone:
		return true, msg, ""
	case condOmit:
		return false, Value{}, path // only reachable if the field was present
	case condIfPresent:
		return match(tmpl.inner[0], msg, path, extracted)

	case condPattern:
		s, ok := msg.Scalar.(string)
		if !ok {
			return false, Value{}, path
		}
		re, err := re2.Compile(tmpl.pattern)
		if err != nil || !re.MatchString(s) {
			return false, Value{}, path
		}
		return true, msg, ""

	case condLength:
		n := valueLength(msg)
		ok, _, _ := match(tmpl.inner[0], ScalarValue(n), path, extracted)
		if !ok {
			return false, Value{}, path
		}
		return true, msg, ""

	case condBetween:
		n, ok := numericOf(msg.Scalar)
		if !ok || n < tmpl.lo || n > tmpl.hi {
			return false, Value{}, path
		}
		return true, msg, ""

	case condGreaterThan:
		n, ok := numericOf(msg.Scalar)
		if !ok || n <= tmpl.lo {
			return false, Value{}, path
		}
		return true, msg, ""

	case condLowerThan:
		n, ok := numericOf(msg.Scalar)
		if !ok || n >= tmpl.hi {
			return false, Value{}, path
		}
		return true, msg, ""

	case condSet:
		return matchSetBijective(tmpl.inner, msg, path, extracted)

	case condSubset:
		return matchSubset(tmpl.inner, msg, path, extracted)

	case condSuperset:
		return matchSuperset(tmpl.inner, msg, path, extracted)

	case condComplement:
		for _, alt := range tmpl.inner {
			if ok, _, _ := match(alt, msg, path, extracted); ok {
				return false, Value{}, path
			}
		}
		return true, msg, ""

	case condAnd:
		for _, part := range tmpl.inner {
			if ok, _, p := match(part, msg, path, extracted); !ok {
				return false, Value{}, p
			}
		}
		return true, msg, ""

	case condOr:
		for _, part := range tmpl.inner {
			if ok, decoded, _ := match(part, msg, path, extracted); ok {
				return true, decoded, ""
			}
		}
		return false, Value{}, path

	case condNot:
		if ok, _, _ := match(tmpl.inner[0], msg, path, extracted); ok {
			return false, Value{}, path
		}
		return true, msg, ""

	case condContains:
		if !msg.IsList {
			return false, Value{}, path
		}
		for _, item := range msg.List {
			if ok, _, _ := match(tmpl.inner[0], item, path, extracted); ok {
				return true, msg, ""
			}
		}
		return false, Value{}, path

	case condExtract:
		ok, decoded, p := match(tmpl.inner[0], msg, path, extracted)
		if !ok {
			return false, Value{}, p
		}
		extracted[tmpl.extractName] = decoded
		return true, decoded, ""

	default:
		return false, Value{}, path
	}
}

// matchSetBijective requires a one-to-one cover between template
// conditions and message elements in either order;
// SPEC_FULL.md redesigns this to a strict bijective matcher rather than
// the original's looser sequential scan (see DESIGN.md open question).
func matchSetBijective(conds []Template, msg Value, path string, extracted map[string]Value) (bool, Value, string) {
	if !msg.IsList || len(conds) != len(msg.List) {
		return false, Value{}, path
	}
	used := make([]bool, len(msg.List))
	var assign func(i int) bool
	assign = func(i int) bool {
		if i == len(conds) {
			return true
		}
		for j, item := range msg.List {
			if used[j] {
				continue
			}
			if ok, _, _ := match(conds[i], item, path, extracted); ok {
				used[j] = true
				if assign(i + 1) {
					return true
				}
				used[j] = false
			}
		}
		return false
	}
	if !assign(0) {
		return false, Value{}, path
	}
	return true, msg, ""
}

// matchSubset requires every element of msg to match some condition in
// conds: msg may omit elements but must contain only ones conds allows.
func matchSubset(conds []Template, msg Value, path string, extracted map[string]Value) (bool, Value, string) {
	if !msg.IsList {
		return false, Value{}, path
	}
	for j := range msg.List {
		matchedAny := false
		for _, c := range conds {
			if ok, _, _ := match(c, msg.List[j], path, extracted); ok {
				matchedAny = true
				break
			}
		}
		if !matchedAny {
			return false, Value{}, path
		}
	}
	return true, msg, ""
}

// matchSuperset requires every condition in conds to find some unused
// matching element of msg: msg must contain at least conds' elements
// but may also carry extra ones.
func matchSuperset(conds []Template, msg Value, path string, extracted map[string]Value) (bool, Value, string) {
	if !msg.IsList {
		return false, Value{}, path
	}
	used := make([]bool, len(msg.List))
	for _, c := range conds {
		found := false
		for j, item := range msg.List {
			if used[j] {
				continue
			}
			if ok, _, _ := match(c, item, path, extracted); ok {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false, Value{}, path
		}
	}
	return true, msg, ""
}

func valueLength(v Value) int {
	switch {
	case v.IsList:
		return len(v.List)
	case v.Scalar != nil:
		if s, ok := v.Scalar.(string); ok {
			return len(s)
		}
		return 1
	default:
		return 0
	}
}

func numericOf(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Value produces a concrete representative for a condition template
// used as a send value rather than a match target. Unsupported valuations fail
// synchronously via the returned error.
func (t Template) Value() (Value, error) {
	switch {
	case t.isScalar:
		return ScalarValue(t.scalar), nil
	case t.isList:
		items := make([]Value, 0, len(t.list))
		for _, item := range t.list {
			v, err := item.Value()
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return ListValue(items...), nil
	case t.isRecord:
		fields := make(map[string]Value, len(t.fields))
		names := make([]string, 0, len(t.fields))
		for name := range t.fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v, err := t.fields[name].Value()
			if err != nil {
				return Value{}, err
			}
			fields[name] = v
		}
		return RecordValue(fields), nil
	case t.isChoice:
		v, err := t.choiceBody.Value()
		if err != nil {
			return Value{}, err
		}
		return ChoiceValue(t.choiceTag, v), nil
	case t.isCondition && t.cond == condBetween:
		return ScalarValue(t.lo), nil
	default:
		return Value{}, fmt.Errorf("template has no concrete value: %v", t.cond)
	}
}
