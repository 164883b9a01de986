package record

// Column vocabulary of the claim and pre-authorization exports.
const (
	ColActivityCode                = "ACTIVITY_CODE"
	ColActivityDescription         = "ACTIVITY_DESCRIPTION"
	ColActivityInternalDescription = "ACTIVITY_INTERNAL_DESCRIPTION"
	ColActivityQuantityApproved    = "ACTIVITY_QUANTITY_APPROVED"
	ColQuantity                    = "QUANTITY"
	ColPrimaryICDCode              = "PRIMARY_ICD_CODE"
	ColSecondaryICDCode            = "SECONDARY_ICD_CODE"
	ColBenefitType                 = "BENEFIT_TYPE"
	ColPolicyNumber                = "POLICY_NUMBER"
	ColProviderName                = "PROVIDER_NAME"
	ColCorporateName               = "CORPORATE_NAME"
	ColServiceName                 = "SERVICE_NAME"
	ColMemberAge                   = "MEMBER_AGE"
	ColGender                      = "GENDER"
	ColPresentingComplaints        = "PRESENTING_COMPLAINTS"
	ColPreAuthNumber               = "PRE_AUTH_NUMBER"
	ColPreauthNumberAlt            = "PREAUTH_NUMBER"
	ColClaimNumber                 = "CLAIM_NUMBER"
	ColStatus                      = "Activity status-Rejected/Approve"
)

// Output trigger columns.
const (
	ColRawTriggers    = "Filter Applied(Exclusions not Applied)"
	ColFinalTriggers  = "Filter Applied"
	ColManualTriggers = "Filter Applied(Manual Verification Required)"
)

// Working columns owned by the engine. They never appear in audited output.
const (
	ColExclusionMask = "exclusion_mask"
	ColApproved      = "__approved"
)

// DateColumns are parsed into time values during preprocessing.
var DateColumns = []string{
	"MEMBER_INCEPTION_DATE",
	"POLICY_START_DATE",
	"POLICY_END_DATE",
	"RECEIVED_DATE",
	"ADDED_DATE",
	"COMPLETED_DATE",
	"ADMISSION_DATE",
	"DISCHARGE_DATE",
	"DOB",
	"CLAIM_COMPLETED_DATE_TIME",
	"AUDITED DATE",
	"DATE OF LMP(FOR MATERNITY ONLY)",
}

// NumericColumns are coerced to whole numbers during preprocessing.
var NumericColumns = []string{
	ColMemberAge,
	ColActivityQuantityApproved,
	ColQuantity,
}

// BlankFillColumns have nulls replaced by the empty string during preprocessing.
var BlankFillColumns = []string{
	ColStatus,
	ColServiceName,
	ColProviderName,
	ColCorporateName,
}

// PreAuthColumns lists the accepted spellings of the pre-authorization number
// column, in lookup order.
var PreAuthColumns = []string{ColPreAuthNumber, ColPreauthNumberAlt}

// IsWorkingColumn reports whether name is an engine-owned working column or a
// rule-private helper column (prefixed with "_tmp_").
func IsWorkingColumn(name string) bool {
	if name == ColExclusionMask || name == ColApproved {
		return true
	}
	return len(name) > 5 && name[:5] == "_tmp_"
}
