package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CredentialsSuite struct {
	suite.Suite
	path  string
	creds *Credentials
}

func TestCredentialsSuite(t *testing.T) {
	suite.Run(t, new(CredentialsSuite))
}

func (s *CredentialsSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "user_credentials_127.0.0.1_5000.txt")
	creds, err := LoadCredentials(s.path)
	s.Require().NoError(err)
	s.creds = creds
}

func (s *CredentialsSuite) TearDownTest() {
	if s.creds != nil {
		_ = s.creds.Close()
	}
}

func (s *CredentialsSuite) reload() *Credentials {
	s.Require().NoError(s.creds.Close())
	creds, err := LoadCredentials(s.path)
	s.Require().NoError(err)
	s.creds = creds
	return creds
}

func (s *CredentialsSuite) TestLoadCreatesMissingFile() {
	_, err := os.Stat(s.path)
	s.Require().NoError(err)
	s.Zero(s.creds.Len())
}

func (s *CredentialsSuite) TestCreateAndLookup() {
	s.Require().NoError(s.creds.Create("alice", "pw1"))

	password, ok := s.creds.Lookup("alice")
	s.True(ok)
	s.Equal("pw1", password)

	_, ok = s.creds.Lookup("bob")
	s.False(ok)
}

func (s *CredentialsSuite) TestCreateDuplicate() {
	s.Require().NoError(s.creds.Create("alice", "pw1"))

	err := s.creds.Create("alice", "other")
	s.ErrorIs(err, ErrDuplicateUser)

	password, _ := s.creds.Lookup("alice")
	s.Equal("pw1", password)
}

func (s *CredentialsSuite) TestCreateRejectsUnstorableValues() {
	for _, pair := range [][2]string{
		{"", "pw"},
		{"al:ice", "pw"},
		{"alice", "p:w"},
		{"alice", ""},
		{"ali\nce", "pw"},
		{strings.Repeat("u", MaxUsernameLength+1), "pw"},
		{"alice", strings.Repeat("p", MaxPasswordLength+1)},
		{strings.Repeat("u", 40000), strings.Repeat("p", 40000)},
	} {
		s.ErrorIs(s.creds.Create(pair[0], pair[1]), ErrInvalidCredential, "pair %q", pair)
	}
	s.Zero(s.creds.Len())
}

func (s *CredentialsSuite) TestWritesOneRecordPerLine() {
	s.Require().NoError(s.creds.Create("alice", "pw1"))
	s.Require().NoError(s.creds.Create("bob", "pw2"))

	data, err := os.ReadFile(s.path)
	s.Require().NoError(err)
	s.Equal("alice:pw1\nbob:pw2\n", string(data))
}

func (s *CredentialsSuite) TestReloadKeepsAccounts() {
	s.Require().NoError(s.creds.Create("alice", "pw1"))
	s.Require().NoError(s.creds.Create("bob", "pw2"))

	creds := s.reload()
	s.Equal(2, creds.Len())
	password, ok := creds.Lookup("bob")
	s.True(ok)
	s.Equal("pw2", password)
}

func (s *CredentialsSuite) TestLoadSkipsMalformedLines() {
	s.Require().NoError(s.creds.Close())
	content := "alice:pw1\nnoseparator\na:b:c\n:nouser\n\nbob:pw2\n"
	s.Require().NoError(os.WriteFile(s.path, []byte(content), 0o600))

	creds, err := LoadCredentials(s.path)
	s.Require().NoError(err)
	s.creds = creds

	s.Equal(2, creds.Len())
	_, ok := creds.Lookup("a")
	s.False(ok)
}

func (s *CredentialsSuite) TestLengthLimitsCountRunes() {
	s.True(ValidCredential(strings.Repeat("é", MaxUsernameLength), strings.Repeat("é", MaxPasswordLength)))
	s.False(ValidCredential(strings.Repeat("é", MaxUsernameLength+1), "pw"))
}

func (s *CredentialsSuite) TestLoadSkipsOversizedRecords() {
	s.Require().NoError(s.creds.Close())
	content := "alice:pw1\n" +
		strings.Repeat("u", 40000) + ":" + strings.Repeat("p", 40000) + "\n" +
		strings.Repeat("v", 40) + ":pw\n" +
		"bob:pw2"
	s.Require().NoError(os.WriteFile(s.path, []byte(content), 0o600))

	creds, err := LoadCredentials(s.path)
	s.Require().NoError(err)
	s.creds = creds

	s.Equal(2, creds.Len())
	password, ok := creds.Lookup("bob")
	s.True(ok)
	s.Equal("pw2", password)
}

func (s *CredentialsSuite) TestLoadFailsOnDirectory() {
	_, err := LoadCredentials(s.T().TempDir())
	s.Error(err)
}

func (s *CredentialsSuite) TestConcurrentCreateSameUser() {
	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			if err := s.creds.Create("carol", fmt.Sprintf("pw%d", i)); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, winners)
	data, err := os.ReadFile(s.path)
	s.Require().NoError(err)
	s.Len(splitLines(string(data)), 1)
}

func (s *CredentialsSuite) TestConcurrentCreateDistinctUsers() {
	const workers = 25
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			s.NoError(s.creds.Create(fmt.Sprintf("user%d", i), "pw"))
		}(i)
	}
	wg.Wait()

	creds := s.reload()
	s.Equal(workers, creds.Len())
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return lines
}
