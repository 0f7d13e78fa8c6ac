package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nebcli/pkg/contracts/domain"
)

func TestAliasSet_ResolveRoles(t *testing.T) {
	aliases := DefaultAliases()

	tests := []struct {
		name    string
		headers []string
		want    domain.RoleMap
		wantErr domain.Role
	}{
		{
			name:    "canonical headers",
			headers: []string{"Date", "Sales", "Profit", "Category", "Region", "Discount"},
			want: domain.RoleMap{
				domain.RoleDate:            "Date",
				domain.RolePrimaryMetric:   "Sales",
				domain.RoleSecondaryMetric: "Profit",
				domain.RoleCategory:        "Category",
				domain.RoleRegion:          "Region",
				domain.RoleDiscount:        "Discount",
			},
		},
		{
			name:    "substring match is case-insensitive",
			headers: []string{"Order Date", "Total Sales"},
			want: domain.RoleMap{
				domain.RoleDate:          "Order Date",
				domain.RolePrimaryMetric: "Total Sales",
			},
		},
		{
			name:    "first matching column wins",
			headers: []string{"Date", "Sales A", "Sales B"},
			want: domain.RoleMap{
				domain.RoleDate:          "Date",
				domain.RolePrimaryMetric: "Sales A",
			},
		},
		{
			name:    "date claims before metrics",
			headers: []string{"Sale Date", "Sale Price"},
			want: domain.RoleMap{
				domain.RoleDate:          "Sale Date",
				domain.RolePrimaryMetric: "Sale Price",
			},
		},
		{
			name:    "missing date",
			headers: []string{"Sales", "Region"},
			wantErr: domain.RoleDate,
		},
		{
			name:    "missing primary metric",
			headers: []string{"Date", "Region"},
			wantErr: domain.RolePrimaryMetric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles, err := aliases.ResolveRoles(tt.headers, "test.csv")
			if tt.wantErr != "" {
				var mapErr *MappingError
				require.True(t, errors.As(err, &mapErr))
				assert.Equal(t, tt.wantErr, mapErr.Role)
				assert.Equal(t, tt.headers, mapErr.Headers)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, roles)
		})
	}
}

func TestAliasSet_Merge(t *testing.T) {
	base := DefaultAliases()
	merged := base.Merge(AliasSet{
		domain.RolePrimaryMetric: {"revenue"},
		domain.RoleCategory:      nil, // empty lists never override
	})

	assert.Equal(t, []string{"revenue"}, merged[domain.RolePrimaryMetric])
	assert.Equal(t, base[domain.RoleCategory], merged[domain.RoleCategory])
	assert.Equal(t, base[domain.RoleDate], merged[domain.RoleDate])
}
