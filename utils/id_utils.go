package utils

import (
	jsoniter "github.com/json-iterator/go"
	uuid "github.com/satori/go.uuid"
	"golang.org/x/xerrors"
)

func GenerateUploadId() string {
	return uuid.NewV4().String()
}

func IsUploadId(content string) bool {
	_, err := uuid.FromString(content)
	return err == nil
}

func Marshal(obj interface{}) ([]byte, error) {
	b, err := jsoniter.Marshal(obj)
	if err != nil {
		return nil, xerrors.Errorf(err.Error())
	}

	return b, nil
}

func Unmarshal(data []byte, obj interface{}) error {
	err := jsoniter.Unmarshal(data, obj)
	if err != nil {
		return xerrors.Errorf(err.Error())
	}

	return nil
}
