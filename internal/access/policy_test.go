package access

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"newsnow_bot/internal/config"
	"newsnow_bot/internal/model"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		ctx   model.AccessContext
		lists Lists
		want  Decision
	}{
		{
			name: "no lists allows direct chat",
			ctx:  model.AccessContext{CallerID: "1", Source: "zhihu"},
			want: Decision{Verdict: Allow},
		},
		{
			name:  "blacklisted caller is silent",
			ctx:   model.AccessContext{CallerID: "13", Source: "zhihu"},
			lists: Lists{Blacklist: []string{"13"}},
			want:  Decision{Verdict: DenySilent},
		},
		{
			name: "blacklist wins over whitelist and group whitelist",
			ctx:  model.AccessContext{CallerID: "13", GroupID: "-100", Source: "zhihu"},
			lists: Lists{
				Blacklist:      []string{"13"},
				Whitelist:      []string{"13"},
				GroupWhitelist: []string{"-100"},
			},
			want: Decision{Verdict: DenySilent},
		},
		{
			name:  "blacklist wins over disabled source",
			ctx:   model.AccessContext{CallerID: "13", Source: "baidu"},
			lists: Lists{Blacklist: []string{"13"}, Sources: []string{"zhihu"}},
			want:  Decision{Verdict: DenySilent},
		},
		{
			name:  "caller outside whitelist is silent",
			ctx:   model.AccessContext{CallerID: "7", Source: "zhihu"},
			lists: Lists{Whitelist: []string{"42"}},
			want:  Decision{Verdict: DenySilent},
		},
		{
			name:  "whitelisted caller allowed",
			ctx:   model.AccessContext{CallerID: "42", Source: "zhihu"},
			lists: Lists{Whitelist: []string{"42"}},
			want:  Decision{Verdict: Allow},
		},
		{
			name:  "group with empty group whitelist is silent even for whitelisted caller",
			ctx:   model.AccessContext{CallerID: "42", GroupID: "-100", Source: "zhihu"},
			lists: Lists{Whitelist: []string{"42"}},
			want:  Decision{Verdict: DenySilent},
		},
		{
			name:  "group not in group whitelist is silent",
			ctx:   model.AccessContext{CallerID: "42", GroupID: "-200", Source: "zhihu"},
			lists: Lists{GroupWhitelist: []string{"-100"}},
			want:  Decision{Verdict: DenySilent},
		},
		{
			name:  "whitelisted group allowed",
			ctx:   model.AccessContext{CallerID: "42", GroupID: "-100", Source: "zhihu"},
			lists: Lists{GroupWhitelist: []string{"-100"}},
			want:  Decision{Verdict: Allow},
		},
		{
			name:  "disabled source is explicit",
			ctx:   model.AccessContext{CallerID: "42", Source: "baidu"},
			lists: Lists{Sources: []string{"zhihu", "weibo"}},
			want:  Decision{Verdict: DenyExplicit, Reason: ReasonSourceDisabled},
		},
		{
			name:  "group silence precedes source check",
			ctx:   model.AccessContext{CallerID: "42", GroupID: "-100", Source: "baidu"},
			lists: Lists{Sources: []string{"zhihu"}},
			want:  Decision{Verdict: DenySilent},
		},
		{
			name:  "enabled source allowed",
			ctx:   model.AccessContext{CallerID: "42", Source: "weibo"},
			lists: Lists{Sources: []string{"zhihu", "weibo"}},
			want:  Decision{Verdict: Allow},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.ctx, tt.lists)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decide() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecideIdentityIgnoresSources(t *testing.T) {
	ctx := model.AccessContext{CallerID: "42", Source: "baidu"}
	got := DecideIdentity(ctx, Lists{Sources: []string{"zhihu"}})
	if diff := cmp.Diff(Decision{Verdict: Allow}, got); diff != "" {
		t.Errorf("DecideIdentity() mismatch (-want +got):\n%s", diff)
	}
}

func TestListsFrom(t *testing.T) {
	s := &config.Settings{
		UserBlacklist:  []string{"1"},
		UserWhitelist:  []string{"2"},
		GroupWhitelist: []string{"3"},
		Sources:        []string{"zhihu"},
	}
	want := Lists{
		Blacklist:      []string{"1"},
		Whitelist:      []string{"2"},
		GroupWhitelist: []string{"3"},
		Sources:        []string{"zhihu"},
	}
	if diff := cmp.Diff(want, ListsFrom(s)); diff != "" {
		t.Errorf("ListsFrom() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Lists{}, ListsFrom(nil)); diff != "" {
		t.Errorf("ListsFrom(nil) mismatch (-want +got):\n%s", diff)
	}
}
