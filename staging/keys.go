package staging

import "github.com/c360studio/semmigrate/catalog"

// Bundle keys written by the stager.
const (
	BundleItem             = "g_research_data_item"
	BundleIdentifier       = "g_research_data_item_identifier"
	BundleCollection       = "g_res_item_collection"
	BundleAssociatedPerson = "g_research_data_item_ass_person"
	BundleTitle            = "g_research_data_item_title"
	BundleAdditionalDate   = "g_research_data_item_date_add"
	BundleResourceType     = "g_reseach_data_item_res_type"
	BundleSubject          = "g_subject"
)

// Field keys written by the stager. Several carry the target schema's
// historical misspellings and must match the catalog verbatim.
const (
	FieldResourceType     = "f_research_data_item_type_res"
	FieldIdentifierName   = "f_research_data_item_id_name"
	FieldIdentifierType   = "f_research_data_item_id_type"
	FieldProject          = "f_research_data_item_project"
	FieldCollection       = "f_res_item_collection"
	FieldSucceeds         = "f_res_item_collection_succeeds"
	FieldPrecedes         = "f_res_item_collection_precedes"
	FieldLanguage         = "f_research_data_item_language"
	FieldCitation         = "f_research_data_item_citation"
	FieldCountry          = "f_research_data_creat_country"
	FieldRegion           = "f_research_data_item_creat_regio"
	FieldSubregion        = "f_research_data_item_creat_subre"
	FieldOriginPlace      = "f_research_data_item_create_loc"
	FieldLocatedAt        = "f_research_data_item_located_at"
	FieldURL              = "f_research_data_item_url"
	FieldCopyright        = "f_research_data_item_copyright"
	FieldAudience         = "f_research_data_target_audience"
	FieldAbstract         = "f_research_data_abstract"
	FieldTOC              = "f_research_data_item_toc"
	FieldNote             = "f_research_data_note"
	FieldSponsor          = "f_research_data_item_sponsor"
	FieldRoleHolder       = "f_research_data_item_role_holder"
	FieldRole             = "f_research_data_item_apers_role"
	FieldMainTitle        = "f_research_data_item_title_main"
	FieldTitle            = "f_research_data_item_title_appel"
	FieldTitleType        = "f_research_data_item_title_type"
	FieldCreateDate       = "f_research_data_item_create_date"
	FieldAdditionalDate   = "f_research_data_item_add_date_d"
	FieldDateType         = "f_research_data_item_add_date_t"
	FieldResType          = "f_reseach_data_item_res_type"
	FieldResMethod        = "f_reseach_data_item_res_t_method"
	FieldResDescription   = "f_reseach_data_item_res_t_desc"
	FieldResNote          = "f_reseach_data_item_res_t_descr"
	FieldTechProperties   = "f_reseach_data_item_tech_prop"
	FieldGenre            = "f_research_data_item_auth_tag"
	FieldSubject          = "f_research_data_item_subject"
	FieldSubjectURL       = "f_subject_url"
	FieldSubjectAuthority = "f_subject_authority"
	FieldSubjectTag       = "f_subject_tag"
	FieldTag              = "f_reseach_data_item_tag"
	FieldPreview          = "f_research_data_item_preview"
	FieldRepository       = "f_research_data_item_repository"
)

// Lookup templates used by the stager.
const (
	QueryResourceType  = "typeofresource"
	QueryIdentifier    = "identifier"
	QueryProject       = "projectid"
	QueryCollection    = "collection"
	QueryLanguage      = "language"
	QueryCountry       = "country"
	QueryRegion        = "region"
	QuerySubregion     = "subregion"
	QueryPlaceOfOrigin = "placeoforigin"
	QueryPlace         = "place"
	QueryLicense       = "license"
	QueryAudience      = "audience"
	QuerySponsor       = "sponsor"
	QueryRole          = "role"
	QueryGenre         = "genre"
	QuerySubjectURI    = "subjectURI"
	QuerySubjectLabel  = "subjectLabel"
	QueryAuthority     = "authority"
	QueryTags          = "tags"
	QueryRepository    = "repository"
	QueryLinkedData    = "ldID"
)

// Composite slot names.
const (
	SlotLevel0    = "level_0"
	SlotLevel1    = "level_1"
	SlotTerm      = "term"
	SlotAuthority = "authority"
)

// Values the stager writes or looks up verbatim.
const (
	DREIdentifierType = "DRE Identifier"
	SponsorRole       = "Sponsor"
	ResourceDigital   = "Digital"
	ResourceImage     = "Image"
	ResourceAudio     = "Audio"
	ResourceText      = "Text"
	MethodBornDigital = "born digital"
	MethodMicrofilm   = "digitized microfilm"
	MethodAnalog      = "digitized other analog"
)

// Requirements lists every catalog key the stager reads, including the
// holder templates and genre authorities configured in opts.
func Requirements(opts Options) catalog.Requirements {
	req := catalog.Requirements{
		Bundles: []string{
			BundleItem, BundleIdentifier, BundleCollection, BundleAssociatedPerson,
			BundleTitle, BundleAdditionalDate, BundleResourceType, BundleSubject,
		},
		Fields: []string{
			FieldResourceType, FieldIdentifierName, FieldIdentifierType, FieldProject,
			FieldCollection, FieldSucceeds, FieldPrecedes, FieldLanguage, FieldCitation,
			FieldCountry, FieldRegion, FieldSubregion, FieldOriginPlace, FieldLocatedAt,
			FieldURL, FieldCopyright, FieldAudience, FieldAbstract, FieldTOC, FieldNote,
			FieldSponsor, FieldRoleHolder, FieldRole, FieldMainTitle, FieldTitle,
			FieldTitleType, FieldCreateDate, FieldAdditionalDate, FieldDateType,
			FieldResType, FieldResMethod, FieldResDescription, FieldResNote,
			FieldTechProperties, FieldGenre, FieldSubject, FieldSubjectURL,
			FieldSubjectAuthority, FieldSubjectTag, FieldTag, FieldPreview, FieldRepository,
		},
		Queries: []string{
			QueryResourceType, QueryIdentifier, QueryProject, QueryCollection,
			QueryLanguage, QueryCountry, QueryRegion, QuerySubregion, QueryPlaceOfOrigin,
			QueryPlace, QueryLicense, QueryAudience, QuerySponsor, QueryRole, QueryGenre,
			QuerySubjectURI, QuerySubjectLabel, QueryAuthority, QueryTags,
			QueryRepository, QueryLinkedData,
		},
	}
	req.Queries = append(req.Queries, opts.HolderTemplates...)
	return req
}
