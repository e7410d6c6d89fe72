package source

import (
	"fmt"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPSource reads an archive from a remote host over SFTP.
type SFTPSource struct {
	file   *sftp.File
	client *sftp.Client
	ssh    *ssh.Client
	name   string
	size   int64
}

// OpenSFTP dials loc.Host and opens loc.Path. The caller must call Close.
func OpenSFTP(loc Location, opts SSHOpts) (*SFTPSource, error) {
	sshClient, err := DialSSH(loc.Host, loc.User, opts)
	if err != nil {
		return nil, err
	}
	src, err := NewSFTPSource(sshClient, loc.Path)
	if err != nil {
		sshClient.Close()
		return nil, err
	}
	src.name = loc.String()
	return src, nil
}

// NewSFTPSource opens path over an established SSH connection. Closing the
// source closes the connection.
func NewSFTPSource(sshClient *ssh.Client, path string) (*SFTPSource, error) {
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	src, err := openSFTPFile(client, path)
	if err != nil {
		client.Close()
		return nil, err
	}
	src.ssh = sshClient
	return src, nil
}

func openSFTPFile(client *sftp.Client, path string) (*SFTPSource, error) {
	info, err := client.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("sftp stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("sftp %s: is a directory", path)
	}
	f, err := client.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sftp open %s: %w", path, err)
	}
	return &SFTPSource{
		file:   f,
		client: client,
		name:   path,
		size:   info.Size(),
	}, nil
}

func (s *SFTPSource) ReadAt(p []byte, off int64) (int, error) { return s.file.ReadAt(p, off) }
func (s *SFTPSource) Size() int64                              { return s.size }
func (s *SFTPSource) Name() string                             { return s.name }

func (s *SFTPSource) Close() error {
	err := s.file.Close()
	if cerr := s.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if s.ssh != nil {
		if serr := s.ssh.Close(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
