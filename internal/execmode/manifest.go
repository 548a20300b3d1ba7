package execmode

import (
	"encoding/xml"
	"os"

	"go.crosstest.dev/harness/errors"
)

// manifest mirrors the handful of AndroidManifest.xml elements the
// activity variant actually needs; encoding/xml marshals it into the
// well-formed document "am start -W" expects.
type manifest struct {
	XMLName     xml.Name        `xml:"manifest"`
	Xmlns       string          `xml:"xmlns:android,attr"`
	Package     string          `xml:"package,attr"`
	VersionCode string          `xml:"android:versionCode,attr"`
	VersionName string          `xml:"android:versionName,attr"`
	UsesSDK     manifestUsesSDK `xml:"uses-sdk"`
	Application manifestApp     `xml:"application"`
}

type manifestUsesSDK struct {
	MinSDK string `xml:"android:minSdkVersion,attr"`
}

type manifestApp struct {
	Activity manifestActivity `xml:"activity"`
}

type manifestActivity struct {
	Name       string             `xml:"android:name,attr"`
	Exported   string             `xml:"android:exported,attr"`
	IntentFltr manifestIntentFltr `xml:"intent-filter"`
}

type manifestIntentFltr struct {
	Action   manifestNamed `xml:"action"`
	Category manifestNamed `xml:"category"`
}

type manifestNamed struct {
	Name string `xml:"android:name,attr"`
}

// writeManifest synthesizes an AndroidManifest.xml for actionName at
// dest, with a package name prefixed "vogar.test." to ensure a "."
// separator is present.
func writeManifest(dest, actionName string) error {
	m := manifest{
		Xmlns:       "http://schemas.android.com/apk/res/android",
		Package:     manifestPackage(actionName),
		VersionCode: "1",
		VersionName: "1.0",
		UsesSDK:     manifestUsesSDK{MinSDK: "21"},
		Application: manifestApp{
			Activity: manifestActivity{
				Name:     ".TargetMonitorActivity",
				Exported: "true",
				IntentFltr: manifestIntentFltr{
					Action:   manifestNamed{Name: "android.intent.action.MAIN"},
					Category: manifestNamed{Name: "android.intent.category.LAUNCHER"},
				},
			},
		},
	}
	data, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal AndroidManifest.xml")
	}
	data = append([]byte(xml.Header), data...)
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", dest)
	}
	return nil
}
