// Package catalog loads, validates and lints rule catalogs.
//
// A catalog is a YAML (or JSON) document with a top-level rules mapping of
// rule key to definition:
//
//	rules:
//	  general_exclusion_hiv:
//	    name: General exclusion - HIV
//	    case_type: both
//	    review_req: none
//	    shape: mask
//	    parameters:
//	      incl_codes: ["86689", "86701", "86702"]
//	      incl_col: ACTIVITY_CODE
//	      excl_codes: [OUT-PATIENT MATERNITY]
//	      excl_col: BENEFIT_TYPE
//
// Mapping order is evaluation order. The shape field selects the concrete
// Params type the parameters block decodes into (see ParamsFor); every shape
// except pair embeds MaskFields.
//
// Codes lists and isin/notin operands may be written as a reference token such
// as __icd_codes__, which resolves to the rule's own list field of that name.
// Resolution happens at load time, so engines only ever see concrete values.
//
// Parse fails the whole catalog on any structural or semantic problem and
// returns an *ErrorList. Lint reports problems that still load, such as
// unknown extra-condition operators.
//
// Watcher reloads a catalog file when it changes, and the gitsource
// subpackage reads catalogs from a git repository.
package catalog
