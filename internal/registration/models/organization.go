package models

// OrganizationType is the legal form of the enterprise.
type OrganizationType string

const (
	OrgProprietorship OrganizationType = "proprietorship"
	OrgPartnership    OrganizationType = "partnership"
	OrgLLP            OrganizationType = "llp"
	OrgPvtCompany     OrganizationType = "pvt_company"
	OrgPublicCompany  OrganizationType = "public_company"
	OrgHUF            OrganizationType = "huf"
	OrgCooperative    OrganizationType = "cooperative"
	OrgTrust          OrganizationType = "trust"
	OrgSociety        OrganizationType = "society"
)

// panHolderCodes maps an organization type to the fourth character of a PAN
// issued to that kind of holder.
var panHolderCodes = map[OrganizationType]byte{
	OrgProprietorship: 'P',
	OrgPartnership:    'F',
	OrgLLP:            'F',
	OrgPvtCompany:     'C',
	OrgPublicCompany:  'C',
	OrgHUF:            'H',
	OrgCooperative:    'C',
	OrgTrust:          'T',
	OrgSociety:        'A',
}

// OrganizationTypes lists the accepted types in display order.
var OrganizationTypes = []OrganizationType{
	OrgProprietorship,
	OrgPartnership,
	OrgLLP,
	OrgPvtCompany,
	OrgPublicCompany,
	OrgHUF,
	OrgCooperative,
	OrgTrust,
	OrgSociety,
}

func (t OrganizationType) IsValid() bool {
	_, ok := panHolderCodes[t]
	return ok
}

// PANCode returns the expected fourth PAN character, or 0 for an unknown type.
func (t OrganizationType) PANCode() byte {
	return panHolderCodes[t]
}

// MatchesPAN reports whether pan was issued to this kind of holder.
func (t OrganizationType) MatchesPAN(pan string) bool {
	code := t.PANCode()
	return code != 0 && len(pan) >= 4 && pan[3] == code
}
