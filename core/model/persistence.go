package model

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"io"
	"os"
	"time"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

// ArtifactVersion is the current artifact layout version. Readers accept any
// version up to and including this one.
const ArtifactVersion = 1

var artifactMagic = []byte("SCGO")

// ErrArtifactFormat is returned when a stream is not a model artifact or was
// written by a newer version.
var ErrArtifactFormat = errors.New("not a scigo model artifact")

// Header precedes the model payload in every artifact.
//
// Layout: the 4 magic bytes "SCGO", then a gob-encoded Header, then the
// gob-encoded model value.
type Header struct {
	Version   int
	ModelType string
	CreatedAt time.Time
}

// SaveModelToWriter writes model as an artifact tagged with modelType.
//
//	var buf bytes.Buffer
//	err := model.SaveModelToWriter(&buf, "RandomForestClassifier", forest)
func SaveModelToWriter(w io.Writer, modelType string, m interface{}) error {
	if _, err := w.Write(artifactMagic); err != nil {
		return errors.NewSerializationError("encode", modelType, err)
	}

	encoder := gob.NewEncoder(w)
	header := Header{Version: ArtifactVersion, ModelType: modelType, CreatedAt: time.Now().UTC()}
	if err := encoder.Encode(header); err != nil {
		return errors.NewSerializationError("encode", modelType, err)
	}
	if err := encoder.Encode(m); err != nil {
		return errors.NewSerializationError("encode", modelType, err)
	}
	return nil
}

// LoadModelFromReader reads an artifact into m, which must be a pointer to
// the type that was saved. The header must name modelType.
func LoadModelFromReader(r io.Reader, modelType string, m interface{}) (Header, error) {
	br := bufio.NewReader(r)
	header, decoder, err := readHeader(br)
	if err != nil {
		return Header{}, err
	}
	if header.ModelType != modelType {
		return header, errors.NewSerializationError("decode", modelType,
			errors.Newf("artifact holds %q", header.ModelType))
	}
	if err := decoder.Decode(m); err != nil {
		return header, errors.NewSerializationError("decode", modelType, err)
	}
	return header, nil
}

// ReadHeader reads only the artifact header.
func ReadHeader(r io.Reader) (Header, error) {
	header, _, err := readHeader(bufio.NewReader(r))
	return header, err
}

func readHeader(r io.Reader) (Header, *gob.Decoder, error) {
	magic := make([]byte, len(artifactMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return Header{}, nil, errors.Wrap(ErrArtifactFormat, err.Error())
	}
	if !bytes.Equal(magic, artifactMagic) {
		return Header{}, nil, ErrArtifactFormat
	}

	decoder := gob.NewDecoder(r)
	var header Header
	if err := decoder.Decode(&header); err != nil {
		return Header{}, nil, errors.Wrap(ErrArtifactFormat, err.Error())
	}
	if header.Version < 1 || header.Version > ArtifactVersion {
		return header, nil, errors.Wrapf(ErrArtifactFormat, "unsupported artifact version %d", header.Version)
	}
	return header, decoder, nil
}

// SaveModel writes an artifact to filename.
func SaveModel(filename, modelType string, m interface{}) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	if err := SaveModelToWriter(bw, modelType, m); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "failed to write file")
	}
	return file.Close()
}

// LoadModel reads an artifact from filename into m.
func LoadModel(filename, modelType string, m interface{}) (Header, error) {
	file, err := os.Open(filename)
	if err != nil {
		return Header{}, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return LoadModelFromReader(file, modelType, m)
}

// EncodeSnapshot gob-encodes v. Estimators with unexported fields use it to
// implement gob.GobEncoder through an exported snapshot struct.
func EncodeSnapshot(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	return nil
}
