package staging

import (
	"context"
	"strings"

	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/source"
)

var digitalImageDescriptions = []string{"digital images", "Digital Photography"}

type classification struct {
	resourceType string
	method       string
	descriptions []string
}

// classify infers resource type and digitization method from the recorder,
// object type, format and media URL. Rules are checked in order and the
// first match wins.
func (s *Stager) classify(rec *source.Record) (classification, bool) {
	recorder := strings.ToLower(rec.String("physicalDescription.recorder"))
	objectType := rec.String("physicalDescription.objectType")
	format := strings.ToLower(rec.String("physicalDescription.format"))
	media := strings.ToLower(rec.String("physicalDescription.mediaUrl"))

	containsAny := func(text string, words ...string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}

	switch {
	case objectType != "" && objectType == s.opts.DigitalPhotoObjectType,
		strings.Contains(recorder, "digital"):
		return classification{ResourceImage, MethodBornDigital, digitalImageDescriptions}, true
	case containsAny(recorder, "35mm", "kodachrome", "film"):
		return classification{ResourceImage, MethodMicrofilm, digitalImageDescriptions}, true
	case containsAny(recorder, "cassette", "kassette"),
		strings.Contains(format, "mp3"),
		strings.HasSuffix(media, ".mp3"):
		return classification{ResourceAudio, MethodAnalog, nil}, true
	case strings.HasSuffix(media, ".pdf"):
		return classification{ResourceText, MethodAnalog, nil}, true
	}
	return classification{}, false
}

// stagePhysicalDescription writes the resource-type entity from explicit
// source values when present, otherwise from classify.
func (s *Stager) stagePhysicalDescription(_ context.Context, rec *source.Record, doc *entity.Document) error {
	pd := rec.Object("physicalDescription")
	if len(pd) == 0 {
		return nil
	}

	d := entity.NewDescriptor(s.bundle(BundleResourceType))
	if typ := source.Text(pd["type"]); typ != "" {
		d.Set(s.field(FieldResType), entity.Literal(typ))
		d.Set(s.field(FieldResMethod), entity.Literals(source.Texts(pd["method"])...)...)
		d.Set(s.field(FieldResDescription), entity.Literals(source.Texts(pd["desc"])...)...)
		d.Set(s.field(FieldResNote), entity.Literals(source.Texts(pd["note"])...)...)
		doc.Set(s.bundle(BundleResourceType), entity.Nested(d))
	} else if c, ok := s.classify(rec); ok {
		d.Set(s.field(FieldResType), entity.Literal(ResourceDigital))
		d.Set(s.field(FieldResMethod), entity.Literal(c.method))
		d.Set(s.field(FieldResDescription), entity.Literals(c.descriptions...)...)
		if recorder := source.Text(pd["recorder"]); recorder != "" {
			d.Set(s.field(FieldResNote), entity.Literal(recorder))
		}
		doc.Set(s.bundle(BundleResourceType), entity.Nested(d))
	} else {
		doc.Warn("physical description could not be classified")
	}

	doc.Set(s.field(FieldTechProperties), entity.Literals(source.Texts(pd["tech"])...)...)
	return nil
}
