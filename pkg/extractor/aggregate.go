package extractor

import (
	"fmt"
	"sort"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/normalizers"
)

// IdentityKey derives the grouping key for an award's supplier. A usable KVK
// registry number always wins; the normalized name is only the fallback, so
// two spellings of the same registered company land on one key. Returns ""
// when the award identifies no supplier at all.
func IdentityKey(a models.SourceAward) string {
	if a.KVKNumber != nil {
		if kvk := normalizers.NormalizeKVK(*a.KVKNumber); kvk != "" {
			return fmt.Sprintf("kvk:%s", kvk)
		}
	}
	if a.SupplierName != nil {
		if name := normalizers.NormalizeOrganizationName(*a.SupplierName); name != "" {
			return fmt.Sprintf("name:%s", name)
		}
	}
	return ""
}

// GroupByIdentity buckets awards by identity key. Awards with no derivable
// identity are returned separately; they are consumed but never aggregated.
func GroupByIdentity(awards []models.SourceAward) (map[string][]models.SourceAward, []models.SourceAward) {
	groups := make(map[string][]models.SourceAward)
	var unidentified []models.SourceAward
	for _, a := range awards {
		key := IdentityKey(a)
		if key == "" {
			unidentified = append(unidentified, a)
			continue
		}
		groups[key] = append(groups[key], a)
	}
	return groups, unidentified
}

// BuildAggregate folds one identity group into a per-batch aggregate. The
// group is sorted by (award date, source id) first so the fold is independent
// of the order rows came back from the database: the canonical name and the
// preferred contact are always taken from the earliest award.
func BuildAggregate(identityKey string, awards []models.SourceAward) models.OrganizationAggregate {
	sorted := make([]models.SourceAward, len(awards))
	copy(sorted, awards)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i].AwardDate, sorted[j].AwardDate
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		}
		return sorted[i].SourceID < sorted[j].SourceID
	})

	agg := models.OrganizationAggregate{
		IdentityKey: identityKey,
	}

	variants := make(map[string]struct{})
	cpvCodes := make(map[string]struct{})
	buyers := make(map[string]struct{})
	sourceIDs := make(map[string]struct{})

	for _, a := range sorted {
		if a.SupplierName != nil && *a.SupplierName != "" {
			if agg.CanonicalName == "" {
				agg.CanonicalName = *a.SupplierName
			}
			variants[*a.SupplierName] = struct{}{}
		}
		if agg.KVKNumber == nil && a.KVKNumber != nil {
			if kvk := normalizers.NormalizeKVK(*a.KVKNumber); kvk != "" {
				agg.KVKNumber = &kvk
			}
		}
		if agg.VATNumber == nil && a.VATNumber != nil && *a.VATNumber != "" {
			agg.VATNumber = a.VATNumber
		}

		if agg.PrimaryEmail == nil {
			agg.PrimaryEmail = a.Email()
		}
		if agg.PrimaryPhone == nil {
			agg.PrimaryPhone = a.Phone()
		}
		if agg.Website == nil {
			agg.Website = a.Website()
		}

		for _, c := range a.CPVCodes {
			cpvCodes[c] = struct{}{}
		}
		if a.BuyerName != nil && *a.BuyerName != "" {
			buyers[*a.BuyerName] = struct{}{}
		}
		sourceIDs[a.SourceID] = struct{}{}

		if a.IsSME {
			agg.IsSME = true
		}

		agg.TotalAwardsWon++
		if a.AwardValue != nil {
			agg.TotalContractValue += *a.AwardValue
			agg.ValuedAwardCount++
			if agg.LargestContractValue == nil || *a.AwardValue > *agg.LargestContractValue {
				v := *a.AwardValue
				agg.LargestContractValue = &v
			}
		}
		if a.AwardDate != nil {
			d := *a.AwardDate
			if agg.FirstAwardDate == nil || d.Before(*agg.FirstAwardDate) {
				agg.FirstAwardDate = &d
			}
			if agg.LastAwardDate == nil || d.After(*agg.LastAwardDate) {
				agg.LastAwardDate = &d
			}
		}
	}

	agg.NormalizedName = normalizers.NormalizeOrganizationName(agg.CanonicalName)
	agg.NameVariants = sortedKeys(variants)
	agg.CPVCodesWon = sortedKeys(cpvCodes)
	agg.FrequentBuyers = sortedKeys(buyers)
	agg.AwardSourceIDs = sortedKeys(sourceIDs)
	agg.ContactVerified = agg.PrimaryEmail != nil || agg.PrimaryPhone != nil

	// Contact-less but enrichable: the registry id gives an external lookup
	// handle, a bare name does not.
	agg.NeedsEnrichment = agg.PrimaryEmail == nil && agg.PrimaryPhone == nil &&
		agg.Website == nil && agg.KVKNumber != nil

	return agg
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
