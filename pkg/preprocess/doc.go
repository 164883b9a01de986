// Package preprocess normalizes a raw claim or pre-authorization record set
// before rules run: blank filling, date and number coercion, the approval
// flag, and the global exclusion-eligibility mask.
package preprocess
