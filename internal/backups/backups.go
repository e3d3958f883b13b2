/*
Copyright 2024 Pledge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package backups

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/pledgebet/pledge/config"
)

// Snapshot maps a collection name to its rows. Each entry becomes one JSON
// file in the backup directory.
type Snapshot map[string]interface{}

// Uploader is the subset of the s3manager uploader used for backups.
type Uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

type BackupManager struct {
	Config   config.BackupConfig
	Uploader Uploader
	now      func() time.Time
}

func NewBackupManager(cfg config.BackupConfig) *BackupManager {
	return &BackupManager{Config: cfg, now: time.Now}
}

func (bm *BackupManager) clock() time.Time {
	if bm.now == nil {
		return time.Now()
	}
	return bm.now()
}

// BackupToDisk writes snap under <dir>/<date>/<time>/ and returns that
// directory.
func (bm *BackupManager) BackupToDisk(ctx context.Context, snap Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(snap) == 0 {
		return "", errors.New("nothing to back up")
	}

	now := bm.clock().UTC()
	dir := filepath.Join(bm.Config.Dir, now.Format("2006-01-02"), now.Format("150405"))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	for name, rows := range snap {
		if err := writeJSON(filepath.Join(dir, name+".json"), rows); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	logrus.WithField("dir", dir).Info("backup written to disk")
	return dir, nil
}

// BackupToS3 writes snap to disk, zips it and uploads the archive.
func (bm *BackupManager) BackupToS3(ctx context.Context, snap Snapshot) error {
	dir, err := bm.BackupToDisk(ctx, snap)
	if err != nil {
		return fmt.Errorf("failed to backup to disk: %w", err)
	}

	zipPath := dir + ".zip"
	if err := zipDir(dir, zipPath); err != nil {
		return fmt.Errorf("failed to zip backup: %w", err)
	}
	defer os.Remove(zipPath)

	uploader := bm.Uploader
	if uploader == nil {
		uploader, err = bm.newS3Uploader()
		if err != nil {
			return err
		}
	}

	file, err := os.Open(zipPath)
	if err != nil {
		return err
	}
	defer file.Close()

	key := strings.TrimPrefix(filepath.ToSlash(strings.TrimPrefix(zipPath, bm.Config.Dir)), "/")
	_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bm.Config.S3BucketName),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	logrus.WithFields(logrus.Fields{"bucket": bm.Config.S3BucketName, "key": key}).Info("backup uploaded to s3")
	return nil
}

func (bm *BackupManager) newS3Uploader() (*s3manager.Uploader, error) {
	if bm.Config.S3BucketName == "" {
		return nil, errors.New("s3 bucket name is required")
	}
	awsCfg := &aws.Config{
		Region:      aws.String(bm.Config.S3Region),
		Credentials: credentials.NewStaticCredentials(bm.Config.AwsAccessKeyId, bm.Config.AwsSecretAccessKey, ""),
	}
	if bm.Config.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(bm.Config.S3Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return s3manager.NewUploader(sess), nil
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func zipDir(srcDir, destZip string) error {
	zipFile, err := os.Create(destZip)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	writer := zip.NewWriter(zipFile)
	defer writer.Close()

	return filepath.Walk(srcDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(srcDir, filePath)
		if err != nil {
			return err
		}
		w, err := writer.Create(filepath.ToSlash(relPath))
		if err != nil {
			return err
		}

		srcFile, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer srcFile.Close()

		_, err = io.Copy(w, srcFile)
		return err
	})
}
