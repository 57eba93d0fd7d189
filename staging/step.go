package staging

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/source"
)

// Step is one field builder of the staging pipeline.
type Step int

// Steps in pipeline order. StepRelatedItems only runs through Field.
const (
	StepResourceType Step = iota
	StepIdentifiers
	StepProject
	StepCollection
	StepLanguage
	StepCitation
	StepGeography
	StepCurrentLocation
	StepURL
	StepCopyright
	StepAudience
	StepAbstract
	StepTableOfContents
	StepNote
	StepAssociatedEntities
	StepTitles
	StepDates
	StepPhysicalDescription
	StepGenre
	StepSubject
	StepTags
	StepPreviewImage
	StepRepository
	StepRelatedItems
)

type keyRef struct {
	bundle bool
	name   string
}

func bundleKey(name string) keyRef { return keyRef{bundle: true, name: name} }
func fieldKey(name string) keyRef  { return keyRef{name: name} }

type builder func(s *Stager, ctx context.Context, rec *source.Record, doc *entity.Document) error

type stepSpec struct {
	name       string
	aliases    []string
	updateOnly bool
	keys       []keyRef
	build      builder
}

var steps = [...]stepSpec{
	StepResourceType: {
		name:    "resourceType",
		aliases: []string{"typeOfResource"},
		keys:    []keyRef{fieldKey(FieldResourceType)},
		build:   (*Stager).stageResourceType,
	},
	StepIdentifiers: {
		name:    "identifiers",
		aliases: []string{"identifier"},
		keys:    []keyRef{bundleKey(BundleIdentifier)},
		build:   (*Stager).stageIdentifiers,
	},
	StepProject: {
		name:  "project",
		keys:  []keyRef{fieldKey(FieldProject)},
		build: (*Stager).stageProject,
	},
	StepCollection: {
		name:  "collection",
		keys:  []keyRef{bundleKey(BundleCollection)},
		build: (*Stager).stageCollection,
	},
	StepLanguage: {
		name:  "language",
		keys:  []keyRef{fieldKey(FieldLanguage)},
		build: (*Stager).stageLanguage,
	},
	StepCitation: {
		name:  "citation",
		keys:  []keyRef{fieldKey(FieldCitation)},
		build: (*Stager).stageCitation,
	},
	StepGeography: {
		name:    "geography",
		aliases: []string{"country", "region", "subregion", "placeOfOrigin"},
		keys: []keyRef{
			fieldKey(FieldCountry), fieldKey(FieldRegion),
			fieldKey(FieldSubregion), fieldKey(FieldOriginPlace),
		},
		build: (*Stager).stageGeography,
	},
	StepCurrentLocation: {
		name:  "currentLocation",
		keys:  []keyRef{fieldKey(FieldLocatedAt)},
		build: (*Stager).stageCurrentLocation,
	},
	StepURL: {
		name:  "url",
		keys:  []keyRef{fieldKey(FieldURL)},
		build: (*Stager).stageURL,
	},
	StepCopyright: {
		name:    "copyright",
		aliases: []string{"license", "accessCondition"},
		keys:    []keyRef{fieldKey(FieldCopyright)},
		build:   (*Stager).stageCopyright,
	},
	StepAudience: {
		name:    "targetAudience",
		aliases: []string{"audience"},
		keys:    []keyRef{fieldKey(FieldAudience)},
		build:   (*Stager).stageAudience,
	},
	StepAbstract: {
		name:  "abstract",
		keys:  []keyRef{fieldKey(FieldAbstract)},
		build: (*Stager).stageAbstract,
	},
	StepTableOfContents: {
		name:    "tableOfContents",
		aliases: []string{"toc"},
		keys:    []keyRef{fieldKey(FieldTOC)},
		build:   (*Stager).stageTableOfContents,
	},
	StepNote: {
		name:  "note",
		keys:  []keyRef{fieldKey(FieldNote)},
		build: (*Stager).stageNote,
	},
	StepAssociatedEntities: {
		name:    "associatedEntities",
		aliases: []string{"AssociatedEntities", "persons", "sponsor"},
		keys:    []keyRef{bundleKey(BundleAssociatedPerson)},
		build:   (*Stager).stageAssociatedEntities,
	},
	StepTitles: {
		name:    "titles",
		aliases: []string{"mainTitle", "altTitle", "titleInfo"},
		keys:    []keyRef{fieldKey(FieldMainTitle), bundleKey(BundleTitle)},
		build:   (*Stager).stageTitles,
	},
	StepDates: {
		name:    "dates",
		aliases: []string{"createDate", "altDate", "dateInfo"},
		keys:    []keyRef{fieldKey(FieldCreateDate), bundleKey(BundleAdditionalDate)},
		build:   (*Stager).stageDates,
	},
	StepPhysicalDescription: {
		name:    "physicalDesc",
		aliases: []string{"physicalDescription"},
		keys:    []keyRef{bundleKey(BundleResourceType), fieldKey(FieldTechProperties)},
		build:   (*Stager).stagePhysicalDescription,
	},
	StepGenre: {
		name:  "genre",
		keys:  []keyRef{fieldKey(FieldGenre)},
		build: (*Stager).stageGenre,
	},
	StepSubject: {
		name:  "subject",
		keys:  []keyRef{fieldKey(FieldSubject)},
		build: (*Stager).stageSubject,
	},
	StepTags: {
		name:  "tags",
		keys:  []keyRef{fieldKey(FieldTag)},
		build: (*Stager).stageTags,
	},
	StepPreviewImage: {
		name:    "previewImage",
		aliases: []string{"preview"},
		keys:    []keyRef{fieldKey(FieldPreview)},
		build:   (*Stager).stagePreviewImage,
	},
	StepRepository: {
		name:  "repository",
		keys:  []keyRef{fieldKey(FieldRepository)},
		build: (*Stager).stageRepository,
	},
	StepRelatedItems: {
		name:       "relatedItems",
		aliases:    []string{"related"},
		updateOnly: true,
		keys:       []keyRef{bundleKey(BundleCollection)},
		build:      (*Stager).stageRelatedItems,
	},
}

func (s Step) valid() bool { return s >= 0 && int(s) < len(steps) }

func (s Step) String() string {
	if !s.valid() {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return steps[s].name
}

// UpdateOnly reports whether the step is skipped by Stage.
func (s Step) UpdateOnly() bool {
	return s.valid() && steps[s].updateOnly
}

// PipelineSteps returns the steps Stage runs, in order.
func PipelineSteps() []Step {
	out := make([]Step, 0, len(steps))
	for i := range steps {
		if !steps[i].updateOnly {
			out = append(out, Step(i))
		}
	}
	return out
}

// AllSteps returns every step, including update-only ones.
func AllSteps() []Step {
	out := make([]Step, len(steps))
	for i := range steps {
		out[i] = Step(i)
	}
	return out
}

// ParseStep maps a step name or one of its aliases to a Step.
// Matching ignores case.
func ParseStep(name string) (Step, error) {
	for i, spec := range steps {
		if strings.EqualFold(spec.name, name) {
			return Step(i), nil
		}
		for _, a := range spec.aliases {
			if strings.EqualFold(a, name) {
				return Step(i), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown staging step %q", name)
}

// ParseSteps parses a list of step names, dropping duplicates.
func ParseSteps(names []string) ([]Step, error) {
	seen := make(map[Step]bool, len(names))
	out := make([]Step, 0, len(names))
	for _, n := range names {
		st, err := ParseStep(n)
		if err != nil {
			return nil, err
		}
		if !seen[st] {
			seen[st] = true
			out = append(out, st)
		}
	}
	return out, nil
}
