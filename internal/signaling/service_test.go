package signaling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"call-relay/internal/calls"
	"call-relay/internal/users"
)

const testOffer = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

const testCandidate = "candidate:842163049 1 udp 1677729535 203.0.113.7 46154 typ srflx raddr 0.0.0.0 rport 0 generation 0"

type fixture struct {
	calls *calls.Service
	repo  *MemoryRepo
	svc   *Service
	call  calls.Call
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := users.NewMemoryRepo()
	for _, id := range []string{"alice", "bob", "carol"} {
		dir.Put(users.Summary{ID: id})
	}
	callRepo := calls.NewMemoryRepo()
	callSvc := calls.NewService(callRepo, dir, dir, calls.Settings{})
	repo := NewMemoryRepo(callRepo)
	svc := NewService(repo, callSvc)

	c, err := callSvc.Create(context.Background(), "alice", "bob", calls.CallTypeVideo)
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	return fixture{calls: callSvc, repo: repo, svc: svc, call: c}
}

func TestService_AppendThenReadInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offer, err := f.svc.Append(ctx, f.call.CallID, "alice", Message{Type: TypeOffer, SDP: testOffer})
	if err != nil {
		t.Fatalf("append offer: %v", err)
	}
	cand, err := f.svc.Append(ctx, f.call.CallID, "bob", Message{Type: TypeICECandidate, Candidate: testCandidate})
	if err != nil {
		t.Fatalf("append candidate: %v", err)
	}
	if offer.Seq != 1 || cand.Seq != 2 {
		t.Fatalf("expected seq 1 and 2, got %d and %d", offer.Seq, cand.Seq)
	}

	all, err := f.svc.Read(ctx, f.call.CallID, "bob", 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all) != 2 || all[0].Type != TypeOffer || all[1].Type != TypeICECandidate {
		t.Fatalf("expected offer then candidate, got %+v", all)
	}
	if all[0].SenderID != "alice" || all[1].SenderID != "bob" {
		t.Fatalf("expected senders recorded")
	}
	if LastSeq(all, 0) != 2 {
		t.Fatalf("expected last seq 2")
	}

	rest, _ := f.svc.Read(ctx, f.call.CallID, "alice", 1)
	if len(rest) != 1 || rest[0].Seq != 2 {
		t.Fatalf("expected only seq 2 after since=1, got %+v", rest)
	}
	if LastSeq(nil, 7) != 7 {
		t.Fatalf("expected since echoed when empty")
	}
}

func TestService_AppendRejectsInvalidMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		msg  Message
	}{
		{"unknown type", Message{Type: "hangup"}},
		{"offer without sdp", Message{Type: TypeOffer}},
		{"garbage sdp", Message{Type: TypeAnswer, SDP: "hello"}},
		{"candidate without candidate", Message{Type: TypeICECandidate}},
		{"candidate with sdp", Message{Type: TypeICECandidate, Candidate: testCandidate, SDP: testOffer}},
		{"garbage candidate", Message{Type: TypeICECandidate, Candidate: "not a candidate at all"}},
		{"candidate with bad port", Message{Type: TypeICECandidate, Candidate: "candidate:1 1 udp 2122260223 192.0.2.1 notaport typ host"}},
	}
	for _, tc := range cases {
		if _, err := f.svc.Append(ctx, f.call.CallID, "alice", tc.msg); !errors.Is(err, calls.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid_input, got %v", tc.name, err)
		}
	}
}

func TestService_AccessAndExistence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := Message{Type: TypeICECandidate, Candidate: testCandidate}

	if _, err := f.svc.Append(ctx, f.call.CallID, "carol", msg); !errors.Is(err, calls.ErrAccessDenied) {
		t.Fatalf("expected access_denied, got %v", err)
	}
	if _, err := f.svc.Read(ctx, f.call.CallID, "carol", 0); !errors.Is(err, calls.ErrAccessDenied) {
		t.Fatalf("expected access_denied on read, got %v", err)
	}
	if _, err := f.svc.Append(ctx, "9f1c1c9e-5d3a-4a8e-8b0e-111111111111", "alice", msg); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if _, err := f.svc.Read(ctx, f.call.CallID, "alice", -1); !errors.Is(err, calls.ErrInvalidInput) {
		t.Fatalf("expected invalid_input for negative since, got %v", err)
	}
}

func TestService_TerminalSessionRejectsAppendButStaysReadable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := Message{Type: TypeICECandidate, Candidate: testCandidate}

	if _, err := f.svc.Append(ctx, f.call.CallID, "alice", msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.calls.UpdateStatus(ctx, f.call.CallID, calls.StatusCancelled, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Append(ctx, f.call.CallID, "alice", msg); !errors.Is(err, calls.ErrUpdateFailed) {
		t.Fatalf("expected update_failed, got %v", err)
	}
	got, err := f.svc.Read(ctx, f.call.CallID, "bob", 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected 1 readable message, got %d, %v", len(got), err)
	}
}

func TestService_ConcurrentAppendsLoseNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "alice"
			if i%2 == 1 {
				sender = "bob"
			}
			if _, err := f.svc.Append(ctx, f.call.CallID, sender, Message{Type: TypeICECandidate, Candidate: testCandidate}); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := f.svc.Read(ctx, f.call.CallID, "alice", 0)
	if len(got) != n {
		t.Fatalf("expected %d messages, got %d", n, len(got))
	}
	seqs := make([]int, 0, n)
	for _, m := range got {
		seqs = append(seqs, int(m.Seq))
	}
	sort.Ints(seqs)
	for i, s := range seqs {
		if s != i+1 {
			t.Fatalf("expected contiguous seqs, got %v", seqs)
		}
	}
}

func TestMessage_PionConversions(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	m := Message{Type: TypeICECandidate, Candidate: testCandidate, SDPMid: &mid, SDPMLineIndex: &idx}
	init := m.ICECandidate()
	if init.Candidate != testCandidate || init.SDPMid == nil || *init.SDPMid != "0" {
		t.Fatalf("unexpected candidate init %+v", init)
	}

	desc, err := Message{Type: TypeAnswer, SDP: testOffer}.SessionDescription()
	if err != nil {
		t.Fatalf("session description: %v", err)
	}
	if desc.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("expected answer, got %s", desc.Type)
	}
	if _, err := m.SessionDescription(); err == nil {
		t.Fatalf("expected candidate to have no session description")
	}
}

func TestService_AcceptsHostCandidateWithoutPrefix(t *testing.T) {
	f := newFixture(t)
	msg := Message{Type: TypeICECandidate, Candidate: "1 1 udp 2122260223 192.0.2.1 54321 typ host"}
	if _, err := f.svc.Append(context.Background(), f.call.CallID, "bob", msg); err != nil {
		t.Fatalf("expected bare candidate line to be accepted, got %v", err)
	}
}

func TestMemoryRepo_PurgeDropsSignalLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Append(ctx, f.call.CallID, "alice", Message{Type: TypeOffer, SDP: testOffer}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.calls.UpdateStatus(ctx, f.call.CallID, calls.StatusCancelled, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.repo.Len() != 1 {
		t.Fatalf("expected 1 stored log before purge, got %d", f.repo.Len())
	}

	f.calls.SetClock(func() time.Time { return time.Now().Add(100 * 24 * time.Hour) })
	n, err := f.calls.PurgeEnded(ctx, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged call, got %d", n)
	}
	if f.repo.Len() != 0 {
		t.Fatalf("expected signal log dropped with its call, got %d logs", f.repo.Len())
	}
	if _, err := f.svc.Read(ctx, f.call.CallID, "alice", 0); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected not_found after purge, got %v", err)
	}
}
